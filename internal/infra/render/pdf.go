package render

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/sirupsen/logrus"

	"firmadoc/internal/domain"
)

const (
	stampBaselineY   = 180.0
	stampFontPoints  = 8
	signatureExcerpt = 24
)

// bandIndex maps a signer role to one of three horizontal bands on the
// stamp page, left to right.
func bandIndex(role domain.SignerRole) int {
	switch role {
	case domain.RoleClient:
		return 0
	case domain.RoleJuridical:
		return 1
	default:
		return 2
	}
}

// PDFRenderer stamps signature blocks onto the last page of a document.
type PDFRenderer struct {
	conf *model.Configuration
	log  *logrus.Entry
}

func NewPDFRenderer(log *logrus.Entry) *PDFRenderer {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFRenderer{conf: conf, log: log}
}

// Render applies one text block per signature and returns the stamped
// document. The input is never modified.
func (r *PDFRenderer) Render(ctx context.Context, document []byte, signatures []domain.Signature) ([]byte, error) {
	if len(signatures) == 0 {
		out := make([]byte, len(document))
		copy(out, document)
		return out, nil
	}

	pageCount, err := api.PageCount(bytes.NewReader(document), r.conf)
	if err != nil {
		return nil, fmt.Errorf("could not read page count: %w", err)
	}
	dims, err := api.PageDims(bytes.NewReader(document), r.conf)
	if err != nil {
		return nil, fmt.Errorf("could not read page dimensions: %w", err)
	}
	if pageCount == 0 || len(dims) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	pageWidth := dims[len(dims)-1].Width
	lastPage := []string{strconv.Itoa(pageCount)}

	current := document
	for i := range signatures {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sig := &signatures[i]

		wm, err := r.stampFor(sig, pageWidth)
		if err != nil {
			return nil, err
		}

		var out bytes.Buffer
		if err := api.AddWatermarks(bytes.NewReader(current), &out, lastPage, wm, r.conf); err != nil {
			return nil, fmt.Errorf("could not stamp %s signature: %w", sig.Role, err)
		}
		current = out.Bytes()
	}

	r.log.WithFields(logrus.Fields{
		"signatures": len(signatures),
		"pages":      pageCount,
	}).Debug("document rendered")

	return current, nil
}

func (r *PDFRenderer) stampFor(sig *domain.Signature, pageWidth float64) (*model.Watermark, error) {
	band := bandIndex(sig.Role)
	// Band centers sit at 1/6, 3/6 and 5/6 of the page width; offsets
	// are measured from the bottom-left anchor.
	offsetX := pageWidth * float64(2*band+1) / 6

	text := stampText(sig)
	desc := fmt.Sprintf(
		"points:%d, scale:1 abs, rot:0, pos:bl, off:%.1f %.1f, fillc:#333333, op:1",
		stampFontPoints, offsetX, stampBaselineY,
	)
	wm, err := api.TextWatermark(text, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("could not build %s stamp: %w", sig.Role, err)
	}
	return wm, nil
}

func stampText(sig *domain.Signature) string {
	excerpt := sig.DigitalSignature
	if len(excerpt) > signatureExcerpt {
		excerpt = excerpt[:signatureExcerpt] + "..."
	}
	return fmt.Sprintf("%s\n%s\nDoc: %s\n%s\nIP: %s\nSig: %s",
		sig.Role,
		sig.Name,
		sig.Document,
		sig.SignedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		sig.OriginIP,
		excerpt,
	)
}
