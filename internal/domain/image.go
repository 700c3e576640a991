package domain

// imageIDPrefix is prepended to a receipt ID to form its image ID
const imageIDPrefix = "img_"

// Image holds the binary payload captured for a receipt
type Image struct {
	ID        string `json:"id"`
	ReceiptID string `json:"receiptId"`
	Data      []byte `json:"-"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	Timestamp int64  `json:"timestamp"`
}

// ImageID derives the image identifier owned by a receipt
func ImageID(receiptID string) string {
	return imageIDPrefix + receiptID
}
