// services/prefsvc/service.go
package prefsvc

import (
	"context"
	"time"

	"frampref-go/bus"
	"frampref-go/errcode"
	"frampref-go/services/frampref"
	"frampref-go/services/internal/util"
	"frampref-go/types"
	"frampref-go/x/logx"
	"frampref-go/x/mathx"
	"frampref-go/x/timex"
)

var log = logx.New("prefsvc")

const (
	verbGet    = "get"
	verbPut    = "put"
	verbCommit = "commit"
	verbReset  = "reset"
	verbStats  = "stats"
	verbState  = "state"
)

var (
	topicConfig = bus.Topic{"config", "frampref"}
	topicReq    = bus.Topic{"prefs", bus.Single}
	topicState  = bus.Topic{"prefs", verbState}
)

const (
	minSync = 100 * time.Millisecond
	maxSync = time.Hour
)

// Chips resolves the FRAM device named by the config's "fram" field.
type Chips interface {
	ByID(id string) (frampref.Chip, bool)
}

// ChipMap is a fixed set of chips keyed by ID.
type ChipMap map[string]frampref.Chip

func (m ChipMap) ByID(id string) (frampref.Chip, bool) {
	c, ok := m[id]
	return c, ok
}

type Service struct {
	conn  *bus.Connection
	chips Chips
	comp  *frampref.Component
	tick  *time.Ticker
}

func New(conn *bus.Connection, chips Chips) *Service {
	return &Service{conn: conn, chips: chips}
}

// Start runs the service in a goroutine until ctx is cancelled.
func Start(ctx context.Context, conn *bus.Connection, chips Chips) *Service {
	s := New(conn, chips)
	go s.Run(ctx)
	return s
}

// Run applies config/frampref, answers prefs/<verb> requests and commits
// the pool on every sync tick. It blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	reqSub := s.conn.Subscribe(topicReq)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(reqSub)

	s.tick = time.NewTicker(timex.Ms(frampref.DefaultSyncIntervalMS))
	defer s.tick.Stop()

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			if s.comp != nil {
				if err := s.comp.Close(); err != nil {
					log.Warnf("final commit: %v", err)
				}
			}
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			if err := s.applyConfig(msg.Payload); err != nil {
				log.Errorf("config: %v", err)
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			if s.comp.PoolMissing() {
				s.publishState("degraded", "pool_unavailable", errcode.NotReady)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg := <-reqSub.Channel():
			s.handle(msg)

		case <-s.tick.C:
			if s.comp == nil {
				continue
			}
			if err := s.comp.Commit(); err != nil {
				log.Warnf("sync: %v", err)
				s.publishState("degraded", "sync_failed", err)
			}
		}
	}
}

func (s *Service) applyConfig(payload any) error {
	cfg := frampref.DefaultConfig()
	if err := util.DecodeJSON(payload, &cfg); err != nil {
		return errcode.Wrap(errcode.InvalidPayload, "config", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	chip, ok := s.chips.ByID(cfg.FRAMID)
	if !ok {
		return &errcode.E{C: errcode.UnknownDevice, Op: "config", Msg: cfg.FRAMID}
	}

	if s.comp != nil {
		if err := s.comp.Close(); err != nil {
			log.Warnf("closing previous pool: %v", err)
		}
		s.comp = nil
	}
	comp := frampref.New(chip, cfg)
	if err := comp.Setup(); err != nil {
		return err
	}
	comp.DumpConfig()
	s.comp = comp

	iv := timex.Ms(frampref.DefaultSyncIntervalMS)
	if cfg.SyncIntervalMS > 0 {
		iv = mathx.Clamp(timex.Ms(cfg.SyncIntervalMS), minSync, maxSync)
	}
	s.tick.Reset(iv)
	log.Infof("sync interval %v", iv)
	return nil
}

func (s *Service) handle(msg *bus.Message) {
	verb, _ := msg.Topic.At(1).(string)
	if verb == verbState {
		return
	}
	if !msg.CanReply() {
		// Fire-and-forget is allowed for the mutating verbs.
		switch verb {
		case verbPut, verbCommit, verbReset:
		default:
			return
		}
	}
	if s.comp == nil {
		s.replyErr(msg, errcode.NotReady)
		return
	}

	switch verb {
	case verbGet:
		var req types.PrefsGet
		if err := util.DecodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		if req.Len <= 0 {
			n, ok := s.comp.Len(req.Key)
			if !ok {
				s.replyErr(msg, errcode.NotFound)
				return
			}
			req.Len = n
		}
		if req.Len > 0xFFFF {
			s.replyErr(msg, errcode.InvalidParams)
			return
		}
		buf := make([]byte, req.Len)
		if err := s.comp.Get(req.Key, buf); err != nil {
			s.replyErr(msg, err)
			return
		}
		s.conn.Reply(msg, types.PrefsGetReply{OK: true, Key: req.Key, Data: buf}, false)

	case verbPut:
		var req types.PrefsPut
		if err := util.DecodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		s.reply(msg, s.comp.Put(req.Key, req.Data))

	case verbCommit:
		s.reply(msg, s.comp.Commit())

	case verbReset:
		s.reply(msg, s.comp.ResetPool())

	case verbStats:
		st, err := s.comp.Stats()
		if err != nil {
			s.replyErr(msg, err)
			return
		}
		s.conn.Reply(msg, types.PrefsStats{
			OK:        true,
			Capacity:  st.Capacity,
			Used:      st.Used,
			Live:      st.Live,
			Stale:     st.Stale,
			Free:      st.Free,
			Records:   st.Records,
			Staged:    st.Staged,
			Occupancy: st.Occupancy(),
			State:     s.comp.State().String(),
		}, false)

	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

func (s *Service) reply(msg *bus.Message, err error) {
	if err != nil {
		s.replyErr(msg, err)
		return
	}
	s.conn.Reply(msg, types.OKReply{OK: true}, false)
}

func (s *Service) replyErr(msg *bus.Message, err error) {
	code := errcode.Of(err)
	if !msg.CanReply() {
		log.Warnf("%v: %v", msg.Topic, err)
		return
	}
	s.conn.Reply(msg, types.ErrorReply{OK: false, Error: string(code)}, false)
}

func (s *Service) publishState(level, status string, err error) {
	st := types.PrefsState{
		Level:  level,
		Status: status,
		TS:     timex.NowMs(),
	}
	if err != nil {
		st.Error = string(errcode.Of(err))
	}
	s.conn.Publish(s.conn.NewMessage(topicState, st, true))
}
