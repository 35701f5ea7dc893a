// Package docx converts a Word document body into an HTML fragment.
// Only paragraph structure and bold/italic runs survive; tables, images and
// list numbering are flattened to paragraphs of text.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
)

const documentPart = "word/document.xml"

var ErrNoDocument = errors.New("archive has no word/document.xml part")

var headingTags = map[string]string{
	"heading1": "h1",
	"heading2": "h2",
	"heading3": "h3",
	"title":    "h1",
}

type Converter struct{}

func New() *Converter { return &Converter{} }

func (*Converter) Convert(data []byte) (string, error) {
	return Convert(data)
}

// Convert reads the main document part of a .docx archive.
func Convert(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("not a DOCX archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != documentPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return render(rc)
	}
	return "", ErrNoDocument
}

type run struct {
	text         strings.Builder
	bold, italic bool
}

type paragraph struct {
	style string
	runs  []*run
}

func (p *paragraph) html() string {
	var body strings.Builder
	for _, r := range p.runs {
		t := html.EscapeString(r.text.String())
		if t == "" {
			continue
		}
		if r.italic {
			t = "<em>" + t + "</em>"
		}
		if r.bold {
			t = "<strong>" + t + "</strong>"
		}
		body.WriteString(t)
	}
	if body.Len() == 0 {
		return ""
	}
	tag := "p"
	if h, ok := headingTags[strings.ToLower(p.style)]; ok {
		tag = h
	}
	return "<" + tag + ">" + body.String() + "</" + tag + ">"
}

func render(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		out    strings.Builder
		para   *paragraph
		cur    *run
		inRPr  bool
		inText bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("malformed document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para = &paragraph{}
			case "pStyle":
				if para != nil {
					para.style = attr(t, "val")
				}
			case "r":
				if para != nil {
					cur = &run{}
					para.runs = append(para.runs, cur)
				}
			case "rPr":
				inRPr = cur != nil
			case "b":
				if inRPr && enabled(t) {
					cur.bold = true
				}
			case "i":
				if inRPr && enabled(t) {
					cur.italic = true
				}
			case "t":
				inText = cur != nil
			case "tab":
				if cur != nil {
					cur.text.WriteByte('\t')
				}
			case "br", "cr":
				if cur != nil {
					cur.text.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if para != nil {
					out.WriteString(para.html())
				}
				para, cur = nil, nil
			case "r":
				cur = nil
			case "rPr":
				inRPr = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && cur != nil {
				cur.text.Write(t)
			}
		}
	}
	return out.String(), nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// enabled reads an on/off property; a bare element means on.
func enabled(el xml.StartElement) bool {
	switch strings.ToLower(attr(el, "val")) {
	case "0", "false", "off", "none":
		return false
	}
	return true
}
