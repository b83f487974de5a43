package models

import "github.com/google/uuid"

// Page is one page of book content. Titles holds the headings that start on
// this page; nil means none.
type Page struct {
	ID      uuid.UUID
	Titles  []string
	Content string
}

func NewPage(titles []string, content string) *Page {
	var t []string
	if len(titles) > 0 {
		t = append(t, titles...)
	}
	return &Page{ID: uuid.New(), Titles: t, Content: content}
}
