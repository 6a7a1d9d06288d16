package gateway

import (
	"bytes"
	"mime/multipart"

	"github.com/pkg/errors"
)

type multipartFile struct {
	field    string
	filename string
	content  []byte
}

// Multipart is a multipart/form-data body. Parts are written in the order
// they were added.
type Multipart struct {
	fields [][2]string
	files  []multipartFile
}

// NewMultipart creates an empty form.
func NewMultipart() *Multipart {
	return &Multipart{}
}

// Field adds a text part.
func (m *Multipart) Field(name, value string) *Multipart {
	m.fields = append(m.fields, [2]string{name, value})
	return m
}

// File adds a file part.
func (m *Multipart) File(field, filename string, content []byte) *Multipart {
	m.files = append(m.files, multipartFile{field: field, filename: filename, content: content})
	return m
}

func (m *Multipart) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range m.fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", errors.Wrapf(err, "write form field %s", f[0])
		}
	}
	for _, f := range m.files {
		part, err := w.CreateFormFile(f.field, f.filename)
		if err != nil {
			return nil, "", errors.Wrapf(err, "create form file %s", f.field)
		}
		if _, err := part.Write(f.content); err != nil {
			return nil, "", errors.Wrapf(err, "write form file %s", f.field)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close multipart writer")
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}
