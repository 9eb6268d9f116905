package model

import "time"

// Book is the slice of the catalog's book record the pipeline touches. The
// pipeline reads ID and SourceDocumentURL and writes the three page-images
// fields as a single unit on successful completion; a failed job never mutates
// them, so they are either all unset or all describe one completed render.
type Book struct {
	ID                   int64      `json:"id"                                db:"id"`
	Title                string     `json:"title"                             db:"title"`
	SourceDocumentURL    string     `json:"source_document_url"               db:"source_document_url"`
	PageImagesPrefix     *string    `json:"page_images_prefix,omitempty"      db:"page_images_prefix"`
	PageImagesCount      *int       `json:"page_images_count,omitempty"       db:"page_images_count"`
	PageImagesRenderedAt *time.Time `json:"page_images_rendered_at,omitempty" db:"page_images_rendered_at"`
	CreatedAt            time.Time  `json:"created_at"                        db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"                        db:"updated_at"`
}

// Rendered returns true when the book has a complete page-image set.
func (b *Book) Rendered() bool {
	return b.PageImagesPrefix != nil && b.PageImagesCount != nil && b.PageImagesRenderedAt != nil
}
