package notion

import (
	"strings"

	"github.com/jomei/notionapi"
)

// TitleProp builds a title property from a plain string.
func TitleProp(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Type:  notionapi.PropertyTypeTitle,
		Title: richText(s),
	}
}

// RichTextProp builds a rich_text property from a plain string.
func RichTextProp(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: richText(s),
	}
}

// URLProp builds a url property. Bare domains get an https:// scheme so
// Notion accepts them.
func URLProp(u string) notionapi.URLProperty {
	return notionapi.URLProperty{
		Type: notionapi.PropertyTypeURL,
		URL:  NormalizeURL(u),
	}
}

// NumberProp builds a number property.
func NumberProp(n float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{
		Type:   notionapi.PropertyTypeNumber,
		Number: n,
	}
}

// SelectProp builds a select property with the given option name.
func SelectProp(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{
		Type:   notionapi.PropertyTypeSelect,
		Select: notionapi.Option{Name: name},
	}
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}

// PlainTitle returns the page's title as plain text, or "" when the page
// has no title property. API responses carry *TitleProperty; locally built
// pages may hold the value form, so both are handled.
func PlainTitle(page *notionapi.Page) string {
	for _, prop := range page.Properties {
		switch tp := prop.(type) {
		case *notionapi.TitleProperty:
			return joinRichText(tp.Title)
		case notionapi.TitleProperty:
			return joinRichText(tp.Title)
		}
	}
	return ""
}

func joinRichText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, part := range parts {
		if part.PlainText != "" {
			b.WriteString(part.PlainText)
			continue
		}
		if part.Text != nil {
			b.WriteString(part.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeURL ensures a URL has a scheme, defaulting to https.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if !strings.Contains(u, "://") {
		return "https://" + u
	}
	return u
}
