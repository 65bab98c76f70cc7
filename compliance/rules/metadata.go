package rules

import (
	"bytes"
	"strings"

	"seehuhn.de/go/xmp"

	"github.com/wudi/preflight/compliance"
)

type pdfSchema struct {
	_        xmp.Namespace `xmp:"http://ns.adobe.com/pdf/1.3/"`
	_        xmp.Prefix    `xmp:"pdf"`
	Keywords xmp.Text
	Producer xmp.Text
	Trapped  xmp.Text
}

type pdfxSchema struct {
	_           xmp.Namespace `xmp:"http://ns.adobe.com/pdfx/1.3/"`
	_           xmp.Prefix    `xmp:"pdfx"`
	Version     xmp.Text      `xmp:"GTS_PDFXVersion"`
	Conformance xmp.Text      `xmp:"GTS_PDFXConformance"`
}

// MetadataConsistency checks that an XMP metadata stream, when present,
// parses and agrees with the info dictionary on the keys both carry.
type MetadataConsistency struct{}

func (MetadataConsistency) ID() string { return "MetadataConsistency" }

func (r MetadataConsistency) CheckDocument(ctx compliance.Context, run *compliance.Run) ([]compliance.Violation, error) {
	doc := run.Doc
	if doc.Metadata == nil && doc.MetadataErr == nil {
		return nil, nil
	}
	if doc.MetadataErr != nil {
		return []compliance.Violation{compliance.NewViolation(r.ID(), "metadata.unreadable.%error%",
			compliance.KV("error", doc.MetadataErr.Error()))}, nil
	}
	packet, err := xmp.Read(bytes.NewReader(doc.Metadata))
	if err != nil {
		return []compliance.Violation{compliance.NewViolation(r.ID(), "metadata.unreadable.%error%",
			compliance.KV("error", err.Error()))}, nil
	}

	pdf := &pdfSchema{}
	packet.Get(pdf)
	pdfx := &pdfxSchema{}
	packet.Get(pdfx)

	var out []compliance.Violation
	for _, f := range []struct {
		key string
		xmp string
	}{
		{"Keywords", pdf.Keywords.V},
		{"Producer", pdf.Producer.V},
		{"Trapped", pdf.Trapped.V},
		{"GTS_PDFXVersion", pdfx.Version.V},
		{"GTS_PDFXConformance", pdfx.Conformance.V},
	} {
		info, ok := doc.Info.Text(f.key)
		if !ok || f.xmp == "" {
			continue
		}
		if strings.TrimSpace(info) != strings.TrimSpace(f.xmp) {
			out = append(out, compliance.NewViolation(r.ID(), "metadata.mismatch.%key%",
				compliance.KV("key", f.key), compliance.KV("info", info), compliance.KV("xmp", f.xmp)))
		}
	}
	return out, nil
}
