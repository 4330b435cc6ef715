package importer

import (
	"context"
	"fmt"

	"github.com/chravel/chravel-import/internal/model"
)

// Result is implemented by the calendar, agenda and lineup envelopes.
type Result interface {
	ItemCount() int
	Valid() bool
	Problems() []string
}

func unknownKind(kind model.Kind) error {
	return fmt.Errorf("unknown import kind %q (want calendar, agenda or lineup)", kind)
}

// ParseFile routes a file import by kind.
func (im *Importer) ParseFile(ctx context.Context, kind model.Kind, f File) (Result, error) {
	switch kind {
	case model.KindCalendar:
		return im.ParseCalendarFile(ctx, f), nil
	case model.KindAgenda:
		return im.ParseAgendaFile(ctx, f), nil
	case model.KindLineup:
		return im.ParseLineupFile(ctx, f), nil
	}
	return nil, unknownKind(kind)
}

// ParseURL routes a web page import by kind.
func (im *Importer) ParseURL(ctx context.Context, kind model.Kind, pageURL string) (Result, error) {
	switch kind {
	case model.KindCalendar:
		return im.ParseCalendarURL(ctx, pageURL), nil
	case model.KindAgenda:
		return im.ParseAgendaURL(ctx, pageURL), nil
	case model.KindLineup:
		return im.ParseLineupURL(ctx, pageURL), nil
	}
	return nil, unknownKind(kind)
}

// ParseText routes a freeform text import by kind.
func (im *Importer) ParseText(ctx context.Context, kind model.Kind, text string) (Result, error) {
	switch kind {
	case model.KindCalendar:
		return im.ParseTextWithAI(ctx, text), nil
	case model.KindAgenda:
		return im.ParseAgendaText(ctx, text), nil
	case model.KindLineup:
		return im.ParseLineupText(ctx, text), nil
	}
	return nil, unknownKind(kind)
}
