package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/clinicalmdr-backend/internal/data/repos"
	"github.com/yungbote/clinicalmdr-backend/internal/domain/study"
	"github.com/yungbote/clinicalmdr-backend/internal/observability"
	"github.com/yungbote/clinicalmdr-backend/internal/platform/logger"
)

// DesignFigureService renders the study design figure: the ordered
// epoch timeline as a horizontal band of colored cells, one per epoch,
// labeled with the resolved epoch term names.
type DesignFigureService interface {
	Render(ctx context.Context, studyUID string, at *time.Time) ([]byte, error)
}

type designFigureService struct {
	log     *logger.Logger
	studies *repos.StudyRepo
	epochs  *repos.StudyEpochRepo

	titleFace font.Face
	cellFace  font.Face
}

// NewDesignFigureService loads the figure font from MDR_FIGURE_FONT
// when set; otherwise it draws with the built-in face, which keeps the
// endpoint working in environments without font files.
func NewDesignFigureService(log *logger.Logger, studies *repos.StudyRepo, epochs *repos.StudyEpochRepo) DesignFigureService {
	serviceLog := log.With("service", "DesignFigureService")
	s := &designFigureService{
		log:       serviceLog,
		studies:   studies,
		epochs:    epochs,
		titleFace: basicfont.Face7x13,
		cellFace:  basicfont.Face7x13,
	}
	if fontPath := strings.TrimSpace(os.Getenv("MDR_FIGURE_FONT")); fontPath != "" {
		title, err1 := loadFigureFont(fontPath, 18)
		cell, err2 := loadFigureFont(fontPath, 13)
		if err1 != nil || err2 != nil {
			serviceLog.Warn("could not load figure font, falling back to built-in face",
				"path", fontPath)
		} else {
			s.titleFace = title
			s.cellFace = cell
		}
	}
	return s
}

const (
	figureWidth   = 1024
	figureHeight  = 160
	figureMargin  = 24.0
	bandTop       = 64.0
	bandHeight    = 56.0
	cellGap       = 4.0
	defaultEpochC = "#A5D6A7"
)

func (s *designFigureService) Render(ctx context.Context, studyUID string, at *time.Time) ([]byte, error) {
	ctx, span := observability.StartSpan(ctx, "DesignFigureService.Render")
	defer span.End()

	var (
		ar     *study.DefinitionAR
		epochs []repos.EpochSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ar, err = s.studies.FindByUID(gctx, studyUID)
		return err
	})
	g.Go(func() error {
		var err error
		epochs, err = s.epochs.SnapshotAt(gctx, studyUID, at)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dc := gg.NewContext(figureWidth, figureHeight)
	dc.SetColor(color.White)
	dc.Clear()

	title := ar.Identification.StudyID()
	if title == "" {
		title = ar.UID
	}
	if ar.Description.StudyTitle != "" {
		title += " - " + ar.Description.StudyTitle
	}
	dc.SetFontFace(s.titleFace)
	dc.SetColor(color.Black)
	dc.DrawString(title, figureMargin, figureMargin+12)

	if len(epochs) == 0 {
		dc.SetFontFace(s.cellFace)
		dc.DrawString("no epochs selected", figureMargin, bandTop+bandHeight/2)
		return encodeFigure(dc)
	}

	usable := float64(figureWidth) - 2*figureMargin - cellGap*float64(len(epochs)-1)
	cellW := usable / float64(len(epochs))
	dc.SetFontFace(s.cellFace)
	for i, ep := range epochs {
		x := figureMargin + float64(i)*(cellW+cellGap)
		dc.SetColor(epochColor(ep.ColorHash))
		dc.DrawRoundedRectangle(x, bandTop, cellW, bandHeight, 6)
		dc.Fill()

		label := ep.TermName
		if label == "" {
			label = ep.EpochTermUID
		}
		dc.SetColor(color.Black)
		tw, th := dc.MeasureString(label)
		if tw > cellW-8 {
			label = truncateLabel(dc, label, cellW-8)
			tw, th = dc.MeasureString(label)
		}
		dc.DrawString(label, x+cellW/2-tw/2, bandTop+bandHeight/2+th/2)
	}
	return encodeFigure(dc)
}

func encodeFigure(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode design figure: %w", err)
	}
	return buf.Bytes(), nil
}

// epochColor parses a "#RRGGBB" color hash, falling back to the default
// epoch color on anything malformed.
func epochColor(hash string) color.NRGBA {
	s := strings.TrimPrefix(strings.TrimSpace(hash), "#")
	if len(s) != 6 {
		s = strings.TrimPrefix(defaultEpochC, "#")
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 3 {
		raw, _ = hex.DecodeString(strings.TrimPrefix(defaultEpochC, "#"))
	}
	return color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: 0xFF}
}

func truncateLabel(dc *gg.Context, label string, maxW float64) string {
	for len(label) > 1 {
		label = label[:len(label)-1]
		if w, _ := dc.MeasureString(label + "..."); w <= maxW {
			return label + "..."
		}
	}
	return label
}

func loadFigureFont(path string, size float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font file: %w", err)
	}
	parsed, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse TTF: %w", err)
	}
	return truetype.NewFace(parsed, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
