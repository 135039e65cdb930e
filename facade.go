package ingress

import (
	"fmt"
	"net/http"

	ingresscommand "github.com/goliatone/go-ingress/command"
	"github.com/goliatone/go-ingress/core"
	ingressquery "github.com/goliatone/go-ingress/query"
	"github.com/goliatone/go-ingress/transport"
)

type Commands struct {
	ProcessWebhook    *ingresscommand.ProcessWebhookCommand
	PurgeEventRecords *ingresscommand.PurgeEventRecordsCommand
}

type Queries struct {
	GetEventRecord   *ingressquery.GetEventRecordQuery
	ListEventRecords *ingressquery.ListEventRecordsQuery
}

// Facade groups the go-command handlers over one Service.
type Facade struct {
	service  *Service
	reader   core.EventRecordReader
	commands Commands
	queries  Queries
	bundles  map[string]any
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	reader core.EventRecordReader
	purger core.EventRecordPurger
}

// WithRecordReader overrides the reader otherwise taken from the service
// store.
func WithRecordReader(reader core.EventRecordReader) FacadeOption {
	return func(options *facadeOptions) {
		options.reader = reader
	}
}

func WithRecordPurger(purger core.EventRecordPurger) FacadeOption {
	return func(options *facadeOptions) {
		options.purger = purger
	}
}

func NewFacade(service *Service, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("ingress: service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.reader == nil {
		cfg.reader, _ = service.RecordReader()
	}
	if cfg.purger == nil {
		cfg.purger, _ = service.RecordPurger()
	}

	facade := &Facade{service: service, reader: cfg.reader}
	facade.commands = Commands{
		ProcessWebhook:    ingresscommand.NewProcessWebhookCommand(service),
		PurgeEventRecords: ingresscommand.NewPurgeEventRecordsCommand(cfg.purger),
	}
	facade.queries = Queries{
		GetEventRecord:   ingressquery.NewGetEventRecordQuery(cfg.reader),
		ListEventRecords: ingressquery.NewListEventRecordsQuery(cfg.reader),
	}

	bundles, err := service.hooks.BuildCommandQueryBundles(facade)
	if err != nil {
		return nil, err
	}
	facade.bundles = bundles
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() *Service {
	if f == nil {
		return nil
	}
	return f.service
}

// Bundle returns the value built by the named extension bundle factory.
func (f *Facade) Bundle(name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	bundle, ok := f.bundles[name]
	return bundle, ok
}

// HTTPHandler mounts the service on the chi router from transport. The
// /events routes are included when a record reader is available.
func (f *Facade) HTTPHandler(opts ...transport.Option) http.Handler {
	if f == nil || f.service == nil {
		return http.NotFoundHandler()
	}
	base := []transport.Option{transport.WithLogger(f.service.Logger())}
	if f.reader != nil {
		base = append(base, transport.WithRecordReader(f.reader))
	}
	return transport.NewRouter(f.service, append(base, opts...)...)
}
