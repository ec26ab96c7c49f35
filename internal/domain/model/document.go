package model

import (
	"fmt"
	"time"
)

// Delivery describes how a saved document was handed to the user.
type Delivery string

const (
	DeliveryOpened Delivery = "opened" // System URL handler opened the file.
	DeliveryShared Delivery = "shared" // Share target accepted the file.
	DeliveryStored Delivery = "saved"  // Only the saved path is reported.
)

// Document is a retrieved (or synthesized) bill PDF.
type Document struct {
	BillID      string
	SupplyID    string
	Filename    string
	Path        string
	Content     []byte
	Pages       int
	Placeholder bool // True when synthesized locally; never an authoritative bill.
	SavedAt     time.Time
}

// Size returns the document length in bytes.
func (d Document) Size() int {
	return len(d.Content)
}

// DocumentFilename returns the deterministic <prefix>_<billId>_<issueDate>.pdf name.
func DocumentFilename(prefix string, bill Bill) string {
	date := bill.IssueDateRaw
	if date == "" {
		date = "sin-fecha"
	}
	return fmt.Sprintf("%s_%s_%s.pdf", prefix, sanitizeFilePart(bill.BillID), sanitizeFilePart(date))
}

// sanitizeFilePart replaces characters that are unsafe in file names.
func sanitizeFilePart(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
		default:
			out[i] = '-'
		}
	}
	return string(out)
}

// DocumentRecord is a catalog entry for a saved document.
type DocumentRecord struct {
	ID          int64
	BillID      string
	SupplyID    string
	Filename    string
	Path        string
	Size        int
	Pages       int
	Placeholder bool
	SavedAt     time.Time
}
