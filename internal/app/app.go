// Package app wires storage, the object store, the event hub, the engine
// and the services into one process.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"annotate/internal/config"
	"annotate/internal/domain"
	"annotate/internal/engine"
	"annotate/internal/hub"
	mcpserver "annotate/internal/mcp"
	"annotate/internal/objectstore"
	"annotate/internal/pdfdoc"
	"annotate/internal/service"
	"annotate/internal/source"
	"annotate/internal/storage"
)

// Options overrides parts of the wiring. The zero value is production.
type Options struct {
	// Library defaults to the PDF library.
	Library pdfdoc.Library
	// Emitter receives every event in addition to the websocket hub.
	Emitter service.EventEmitter
	// StandaloneMCP routes approvals through the metadata database so a
	// separate serve process can answer them.
	StandaloneMCP bool
}

// App is one running annotate process.
type App struct {
	cfg *config.Config

	// Exactly one of db and mongo is set
	db    *storage.DB
	mongo *storage.MongoStore

	docs      domain.DocumentStore
	anns      domain.AnnotationStore
	positions domain.PositionStore
	links     domain.LinkStore
	bookmarks domain.BookmarkStore
	notes     domain.NoteStore
	approvals domain.ApprovalStore // nil with the mongo driver

	lib      pdfdoc.Library
	bucket   *objectstore.Bucket
	purger   *objectstore.Purger
	hub      *hub.Hub
	emitter  service.EventEmitter
	resolver *source.Resolver
	viewport *engine.StaticViewport

	Engine    *engine.Engine
	Documents *service.DocumentService
	Positions *service.PositionService
	Bookmarks *service.BookmarkService
	Notes     *service.NoteService
	MCP       *mcpserver.Server
}

// New opens the configured stores and builds every component. Close
// releases them.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{cfg: cfg, lib: opts.Library, hub: hub.New()}
	if a.lib == nil {
		a.lib = pdfdoc.NewPDF()
	}
	a.emitter = service.MultiEmitter{a.hub, opts.Emitter}

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}

	bucket, err := objectstore.NewBucket(cfg.ObjectsDir(), a.links, objectstore.Options{
		BaseURL:     cfg.BaseURL,
		PublicLinks: cfg.PublicLinks,
	})
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.bucket = bucket
	a.purger = objectstore.NewPurger(a.links)

	a.resolver = source.NewResolver(a.lib, a.bucket, a.docs, source.Options{
		Tiers:   cfg.SourceTiers,
		LinkTTL: cfg.LinkTTL,
	})
	a.viewport = engine.NewStaticViewport(1024, 768, 1)
	a.hub.OnMessage(a.handleClientMessage)

	a.Engine, err = a.newEngine(a.viewport)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.Documents = service.NewDocumentService(a.docs, a.bucket, a.anns, a.lib, a.emitter)
	a.Positions = service.NewPositionService(a.positions)
	a.Bookmarks = service.NewBookmarkService(a.bookmarks, a.docs, a.emitter)
	a.Notes = service.NewNoteService(a.notes, a.docs, a.emitter)

	deps := mcpserver.Deps{
		Emitter:   a.emitter,
		Engine:    a.Engine,
		Documents: a.Documents,
		Positions: a.Positions,
		Bookmarks: a.Bookmarks,
		Notes:     a.Notes,
		UserID:    cfg.UserID,
	}
	if opts.StandaloneMCP && a.approvals != nil {
		deps.Approvals = a.approvals
	}
	a.MCP = mcpserver.New(ctx, deps)
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	if a.cfg.DBDriver == "mongo" {
		m, err := storage.OpenMongo(ctx, a.cfg.DBDSN, a.cfg.MongoDB)
		if err != nil {
			return fmt.Errorf("open mongo: %w", err)
		}
		a.mongo = m
		a.docs, a.anns, a.positions, a.links = m, m, m, m
		a.bookmarks, a.notes = m, m
		return nil
	}

	dialect, err := storage.ParseDialect(a.cfg.DBDriver)
	if err != nil {
		return err
	}
	var db *storage.DB
	if dialect == storage.SQLite {
		db, err = storage.OpenSQLite(a.cfg.SQLitePath())
	} else {
		db, err = storage.Open(dialect, a.cfg.DBDSN)
	}
	if err != nil {
		return fmt.Errorf("open %s database: %w", dialect, err)
	}
	a.db = db
	a.docs = storage.NewDocumentStore(db)
	a.anns = storage.NewAnnotationStore(db)
	a.positions = storage.NewPositionStore(db)
	a.links = storage.NewLinkStore(db)
	a.bookmarks = storage.NewBookmarkStore(db)
	a.notes = storage.NewNoteStore(db)
	a.approvals = storage.NewApprovalStore(db)
	return nil
}

func (a *App) closeStores() {
	if a.db != nil {
		a.db.Close()
	}
	if a.mongo != nil {
		a.mongo.Close()
	}
}

// newEngine builds an engine sharing the app's stores and emitter.
func (a *App) newEngine(viewport engine.ViewportObserver) (*engine.Engine, error) {
	return engine.New(engine.Options{
		Library:      a.lib,
		Resolver:     a.resolver,
		Annotations:  a.anns,
		Emitter:      a.emitter,
		Viewport:     viewport,
		UserID:       a.cfg.UserID,
		Debounce:     a.cfg.SaveDebounce,
		SaveInterval: a.cfg.SaveInterval,
		RenderMode:   a.cfg.RenderMode,
	})
}

// handleClientMessage applies messages sent by websocket clients.
func (a *App) handleClientMessage(msgType string, data json.RawMessage) {
	switch msgType {
	case "viewport":
		var v engine.Viewport
		if err := json.Unmarshal(data, &v); err != nil {
			log.Printf("[App] viewport message: %v", err)
			return
		}
		if v.DevicePixelRatio <= 0 {
			v.DevicePixelRatio = 1
		}
		a.viewport.Resize(v)
	default:
		log.Printf("[App] ignoring client message %q", msgType)
	}
}

// Close remembers the reading position, destroys the engine and closes the
// stores.
func (a *App) Close() {
	if docID := a.Engine.DocumentID(); docID != "" {
		if err := a.Positions.Save(context.Background(), a.cfg.UserID, docID, a.Engine.CurrentPage(), a.Engine.Zoom()); err != nil {
			log.Printf("[App] save position: %v", err)
		}
	}
	a.Engine.Destroy()
	a.purger.Stop()
	a.hub.Close()
	a.closeStores()
}

// PurgeLinks removes expired object links once.
func (a *App) PurgeLinks(ctx context.Context) int64 {
	return a.purger.Sweep(ctx)
}
