package xmlutils

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
	"gopkg.in/xmlpath.v2"
)

// Header is the group header and account of a camt message
type Header struct {
	MessageID   string
	CreatedAt   string
	AccountIBAN string
	EntryCount  int
}

// NewDecoder returns an xml.Decoder that understands the legacy charsets banks
// still declare (ISO-8859-1, Windows-1252).
func NewDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	return d
}

// Parse parses a payload into an xmlpath node tree
func Parse(payload []byte) (*xmlpath.Node, error) {
	root, err := xmlpath.ParseDecoder(NewDecoder(bytes.NewReader(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	return root, nil
}

// ExtractFromXML extracts values from an XML node using an XPath expression
func ExtractFromXML(root *xmlpath.Node, xpath string) ([]string, error) {
	path, err := xmlpath.Compile(xpath)
	if err != nil {
		return nil, fmt.Errorf("failed to compile XPath: %w", err)
	}

	var values []string
	iter := path.Iter(root)
	for iter.Next() {
		values = append(values, iter.Node().String())
	}

	return values, nil
}

// SniffHeader reads the message id, creation time, account and entry count of a
// camt payload without decoding the whole document.
func SniffHeader(payload []byte) (Header, error) {
	root, err := Parse(payload)
	if err != nil {
		return Header{}, err
	}

	var h Header
	targets := []struct {
		xpath string
		dst   *string
	}{
		{XPathMessageID, &h.MessageID},
		{XPathCreatedAt, &h.CreatedAt},
		{XPathAccountIBAN, &h.AccountIBAN},
	}
	for _, target := range targets {
		values, err := ExtractFromXML(root, target.xpath)
		if err != nil {
			return Header{}, err
		}
		*target.dst = strings.TrimSpace(GetOrEmpty(values, 0))
	}

	amounts, err := ExtractFromXML(root, XPathEntryAmount)
	if err != nil {
		return Header{}, err
	}
	h.EntryCount = len(amounts)

	if h.MessageID == "" {
		return h, errors.New("group header has no message id")
	}
	return h, nil
}

// RootNamespace returns the namespace of the document element.
// xmlpath drops namespaces, so this walks the token stream directly.
func RootNamespace(payload []byte) (string, error) {
	d := NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", errors.New("document has no root element")
			}
			return "", fmt.Errorf("failed to read XML: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Space, nil
		}
	}
}

// GetOrEmpty returns the value at the specified index in a slice, or an empty string if the index is out of bounds
func GetOrEmpty(slice []string, index int) string {
	if index < len(slice) {
		return slice[index]
	}
	return ""
}
