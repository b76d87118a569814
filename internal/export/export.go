// Package export writes a complete game, with its fundings, areas and items,
// as a gzip-compressed JSON document.
package export

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/satoshigo/hunt/pkg/core"
	"github.com/satoshigo/hunt/pkg/streaming"
)

// Source is the read side of a storage backend.
type Source interface {
	GetGame(ctx context.Context, id string) (core.Game, error)
	ListFundings(ctx context.Context, gameID string) ([]core.Funding, error)
	ListAreas(ctx context.Context, gameID string) ([]core.AreaWithItems, error)
}

// Document is the exported form of a game.
type Document struct {
	ExportedAt  time.Time               `json:"exportedAt"`
	Game        Game                    `json:"game"`
	Fundings    []Funding               `json:"fundings"`
	Areas       []streaming.AreaPayload `json:"areas"`
	Collected   int64                   `json:"collectedSats"`
	Uncollected int64                   `json:"uncollectedSats"`
}

// Game omits the wallet key.
type Game struct {
	ID          string    `json:"id"`
	Wallet      string    `json:"wallet"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"time"`
}

// Funding omits the payment request.
type Funding struct {
	PaymentHash string               `json:"paymentHash"`
	Amount      int64                `json:"amount"`
	TopLeft     streaming.Coordinate `json:"topLeft"`
	BottomRight streaming.Coordinate `json:"bottomRight"`
	Confirmed   bool                 `json:"confirmed"`
	CreatedAt   time.Time            `json:"time"`
	ConfirmedAt *time.Time           `json:"confirmedAt,omitempty"`
}

// Build loads everything belonging to gameID.
func Build(ctx context.Context, src Source, gameID string, now time.Time) (Document, error) {
	game, err := src.GetGame(ctx, gameID)
	if err != nil {
		return Document{}, fmt.Errorf("error getting game: %w", err)
	}
	fundings, err := src.ListFundings(ctx, gameID)
	if err != nil {
		return Document{}, fmt.Errorf("error getting fundings: %w", err)
	}
	areas, err := src.ListAreas(ctx, gameID)
	if err != nil {
		return Document{}, fmt.Errorf("error getting areas: %w", err)
	}

	doc := Document{
		ExportedAt: now.UTC(),
		Game: Game{
			ID:          game.ID,
			Wallet:      game.Wallet,
			Title:       game.Title,
			Description: game.Description,
			Amount:      game.Amount,
			CreatedAt:   game.CreatedAt,
		},
		Fundings: make([]Funding, 0, len(fundings)),
		Areas:    make([]streaming.AreaPayload, 0, len(areas)),
	}
	for _, f := range fundings {
		doc.Fundings = append(doc.Fundings, Funding{
			PaymentHash: f.ID,
			Amount:      f.Amount,
			TopLeft:     streaming.FromCoordinate(f.TopLeft),
			BottomRight: streaming.FromCoordinate(f.BottomRight),
			Confirmed:   f.Confirmed,
			CreatedAt:   f.CreatedAt,
			ConfirmedAt: f.ConfirmedAt,
		})
	}
	for _, a := range areas {
		doc.Areas = append(doc.Areas, streaming.FromArea(a))
		for _, it := range a.Items {
			if it.Collected {
				doc.Collected += it.Value
			} else {
				doc.Uncollected += it.Value
			}
		}
	}
	return doc, nil
}

// Write encodes doc as gzip-compressed JSON.
func Write(w io.Writer, doc Document) error {
	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(doc); err != nil {
		_ = gz.Close()
		return fmt.Errorf("error marshalling game data: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("error writing to gzip: %w", err)
	}
	return nil
}

// Read decodes a document written by Write.
func Read(r io.Reader) (Document, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return Document{}, err
	}
	defer func() { _ = gz.Close() }()

	var doc Document
	if err := json.NewDecoder(gz).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("error decoding game data: %w", err)
	}
	return doc, nil
}

// FileName returns a filesystem-safe name for doc.
func FileName(doc Document) string {
	name := fmt.Sprintf("%s_%s.json.gz", doc.Game.Title, doc.ExportedAt.Format("20060102_150405"))
	return strings.NewReplacer(" ", "_", ":", "_", "/", "_", "\\", "_").Replace(name)
}

// ToFile builds the document for gameID and writes it into dir.
func ToFile(ctx context.Context, src Source, gameID, dir string, now time.Time) (string, error) {
	doc, err := Build(ctx, src, gameID, now)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName(doc))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error creating file: %w", err)
	}
	if err := Write(f, doc); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
