package heartbeat

import (
	"context"
	"time"

	"frampref-go/bus"
	"frampref-go/services/internal/util"
	"frampref-go/types"
	"frampref-go/x/logx"
)

var (
	topicConfigHeartbeat = bus.Topic{"config", "heartbeat"}
	topicPrefsStats      = bus.Topic{"prefs", "stats"}
)

var log = logx.New("heartbeat")

const (
	defaultInterval = 10 * time.Second
	requestTimeout  = 500 * time.Millisecond
)

// Service periodically asks the prefs service for pool usage and logs it.
type Service struct{}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	iv := defaultInterval
	timer := time.NewTimer(iv)
	defer timer.Stop()

	// loop until context is cancelled, respond to timer and config changes
	for {
		select {
		case <-ctx.Done():
			log.Infof("stopping")
			return
		case <-timer.C:
			s.beat(ctx, conn)
			timer.Reset(iv)
		case msg := <-cfgSub.Channel():
			if v, ok := interval(msg.Payload); ok {
				iv = v
				util.ResetTimer(timer, iv)
				log.Infof("interval set to %v", iv)
			}
		}
	}
}

// interval reads {"interval": seconds}.
func interval(p any) (time.Duration, bool) {
	m, ok := p.(map[string]any)
	if !ok {
		return 0, false
	}
	var sec float64
	switch v := m["interval"].(type) {
	case float64:
		sec = v
	case interface{ Float64() (float64, error) }: // json.Number
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		sec = f
	default:
		return 0, false
	}
	if sec <= 0 {
		return 0, false
	}
	return time.Duration(sec * float64(time.Second)), true
}

func (s *Service) beat(ctx context.Context, conn *bus.Connection) {
	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	reply, err := conn.RequestWait(rctx, conn.NewMessage(topicPrefsStats, nil, false))
	if err != nil {
		log.Infof("%s alive, prefs silent", time.Now().Format("15:04:05"))
		return
	}
	switch st := reply.Payload.(type) {
	case types.PrefsStats:
		log.Infof("%s pool %d%% used, %d records, %d stale bytes, %s",
			time.Now().Format("15:04:05"), st.Occupancy, st.Records, st.Stale, st.State)
	case types.ErrorReply:
		log.Infof("%s alive, prefs %s", time.Now().Format("15:04:05"), st.Error)
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
