package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Book is a catalog entry. CoverImage is the stored file name of the
// optional cover, relative to the upload directory.
type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID               int64      `bun:"id,pk,autoincrement" json:"id"`
	Title            string     `bun:"title,notnull" json:"title"`
	Author           string     `bun:"author,notnull" json:"author"`
	ISBN             string     `bun:"isbn" json:"isbn,omitempty"`
	Description      string     `bun:"description" json:"description,omitempty"`
	Price            float64    `bun:"price,notnull,default:0" json:"price"`
	PublishDate      *time.Time `bun:"publish_date" json:"publishDate,omitempty"`
	CoverImage       *string    `bun:"cover_image" json:"coverImage,omitempty"`
	CoverContentType *string    `bun:"cover_content_type" json:"coverContentType,omitempty"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// BookShort is the title/author projection used by listings and the guest tier.
type BookShort struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// Short projects b onto BookShort.
func (b *Book) Short() BookShort {
	return BookShort{ID: b.ID, Title: b.Title, Author: b.Author}
}
