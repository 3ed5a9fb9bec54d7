package server

import (
	"context"
	"encoding/json"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gosight/gosight/engagement/internal/beacon"
	"github.com/gosight/gosight/engagement/internal/pageview"
)

// Stream operations.
const (
	OpStart   = "start"
	OpSignals = "signals"
	OpUnload  = "unload"
)

type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, apiKey string) (string, error)
	CheckRateLimit(ctx context.Context, projectID string) bool
}

type ClientEnricher interface {
	Enrich(userAgent, clientIP string) beacon.Client
}

// SignalServer accepts page view signals over a bidirectional stream. Page
// views started on a stream are unloaded when the stream ends.
type SignalServer struct {
	registry  *pageview.Registry
	validator KeyValidator
	enricher  ClientEnricher
}

func NewSignalServer(r *pageview.Registry, v KeyValidator, e ClientEnricher) *SignalServer {
	return &SignalServer{
		registry:  r,
		validator: v,
		enricher:  e,
	}
}

// Request is one inbound stream message.
type Request struct {
	Op                       string            `json:"op"`
	ProjectKey               string            `json:"project_key"`
	SessionID                string            `json:"session_id"`
	PageViewID               string            `json:"page_view_id"`
	URL                      string            `json:"url"`
	Referrer                 string            `json:"referrer"`
	EnableHeartbeats         *bool             `json:"enable_heartbeats"`
	SecondsBetweenHeartbeats float64           `json:"seconds_between_heartbeats"`
	ActiveTimeout            float64           `json:"active_timeout"`
	Signals                  []pageview.Signal `json:"signals"`
}

// Ack answers one Request.
type Ack struct {
	Op         string   `json:"op"`
	Success    bool     `json:"success"`
	PageViewID string   `json:"page_view_id,omitempty"`
	Accepted   int      `json:"accepted_count,omitempty"`
	Rejected   int      `json:"rejected_count,omitempty"`
	Emitted    bool     `json:"emitted,omitempty"`
	Inc        int      `json:"inc,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

func (s *SignalServer) StreamSignals(stream SignalService_StreamSignalsServer) error {
	ctx := stream.Context()
	st := &streamState{
		projects: make(map[string]struct{}),
		started:  make(map[string]struct{}),
	}
	defer func() {
		for id := range st.started {
			if _, err := s.registry.Unload(id); err == nil {
				log.Debug().Str("page_view_id", id).Msg("Unloaded page view on stream close")
			}
		}
	}()

	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req Request
		if err := decodeStruct(msg, &req); err != nil {
			if err := s.send(stream, Ack{Errors: []string{"Invalid message"}}); err != nil {
				return err
			}
			continue
		}

		ack := s.handle(ctx, req, st)
		if err := s.send(stream, ack); err != nil {
			return err
		}
	}
}

// streamState is what one stream has been allowed to touch.
type streamState struct {
	// projects validated by a start on this stream
	projects map[string]struct{}
	// page views started on this stream and not yet unloaded
	started map[string]struct{}
}

// owned returns the page view if it belongs to a project validated on this
// stream. Page views of other projects look like unknown ones.
func (s *SignalServer) owned(st *streamState, id string) (*pageview.PageView, error) {
	pv, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if _, ok := st.projects[pv.Identity.ProjectID]; !ok {
		return nil, pageview.ErrPageViewNotFound
	}
	return pv, nil
}

func (s *SignalServer) handle(ctx context.Context, req Request, st *streamState) Ack {
	ack := Ack{Op: req.Op, PageViewID: req.PageViewID}

	switch req.Op {
	case OpStart:
		projectID, err := s.validator.ValidateAPIKey(ctx, req.ProjectKey)
		if err != nil {
			ack.Errors = []string{"Invalid API key"}
			return ack
		}
		if !s.validator.CheckRateLimit(ctx, projectID) {
			ack.Errors = []string{"Rate limit exceeded"}
			return ack
		}
		if req.SessionID == "" {
			req.SessionID = uuid.New().String()
		}

		userAgent, clientIP := streamClient(ctx)
		pv := s.registry.Start(pageview.StartRequest{
			ProjectID:                projectID,
			SessionID:                req.SessionID,
			URL:                      req.URL,
			Referrer:                 req.Referrer,
			Client:                   s.enricher.Enrich(userAgent, clientIP),
			EnableHeartbeats:         req.EnableHeartbeats,
			SecondsBetweenHeartbeats: req.SecondsBetweenHeartbeats,
			ActiveTimeout:            req.ActiveTimeout,
		})
		st.projects[projectID] = struct{}{}
		st.started[pv.ID] = struct{}{}
		ack.PageViewID = pv.ID
		ack.Success = true

	case OpSignals:
		pv, err := s.owned(st, req.PageViewID)
		if err != nil {
			ack.Errors = []string{err.Error()}
			return ack
		}
		if !s.validator.CheckRateLimit(ctx, pv.Identity.ProjectID) {
			ack.Errors = []string{"Rate limit exceeded"}
			return ack
		}
		res, err := s.registry.Apply(pv.ID, req.Signals)
		if err != nil {
			ack.Errors = []string{err.Error()}
			return ack
		}
		ack.Accepted = res.Accepted
		ack.Rejected = res.Rejected
		ack.Errors = res.Errors
		ack.Success = res.Rejected == 0

	case OpUnload:
		if _, err := s.owned(st, req.PageViewID); err != nil {
			ack.Errors = []string{err.Error()}
			return ack
		}
		d, err := s.registry.Unload(req.PageViewID)
		delete(st.started, req.PageViewID)
		if err != nil {
			ack.Errors = []string{err.Error()}
			return ack
		}
		ack.Emitted = d.Emit
		ack.Inc = d.Inc
		ack.Success = true

	default:
		ack.Errors = []string{"Unknown op " + req.Op}
	}
	return ack
}

func (s *SignalServer) send(stream SignalService_StreamSignalsServer, ack Ack) error {
	msg, err := encodeStruct(ack)
	if err != nil {
		return err
	}
	return stream.Send(msg)
}

// streamClient reads the user agent and peer address of the stream.
func streamClient(ctx context.Context) (userAgent, clientIP string) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("user-agent"); len(v) > 0 {
			userAgent = v[0]
		}
		if v := md.Get("x-real-ip"); len(v) > 0 {
			clientIP = v[0]
		}
	}
	if clientIP == "" {
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			clientIP = p.Addr.String()
		}
	}
	return userAgent, clientIP
}

func decodeStruct(msg *structpb.Struct, v interface{}) error {
	data, err := json.Marshal(msg.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func encodeStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
