package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platbet/wallet-core/internal/domain"
	"github.com/platbet/wallet-core/internal/models"
	"github.com/platbet/wallet-core/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrUnknownGatewayRef marks a webhook event whose reference matches no local
// transaction. The event is parked and retried; the gateway can fire webhooks
// before our own insert commits.
var ErrUnknownGatewayRef = errors.New("unknown gateway reference")

const (
	parkedEventsKey = "wallet:parked_events"

	// Parked events older than this are dropped on retry; by then the
	// charge or transfer has long expired at the gateway.
	parkedEventMaxAge = 24 * time.Hour
)

// Event is a verified, normalized gateway notification.
type Event struct {
	GatewayRef string    `json:"gateway_ref"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// ReconciliationService converges local transaction state with what the
// gateway reports. Every event lands in the ledger's exactly-once entry
// points, so duplicates and replays are safe regardless of delivery order.
type ReconciliationService struct {
	store  QueryStore
	ledger *LedgerService
	rdb    *redis.Client
}

func NewReconciliationService(store QueryStore, ledger *LedgerService, rdb *redis.Client) *ReconciliationService {
	return &ReconciliationService{store: store, ledger: ledger, rdb: rdb}
}

// HandleEvent applies one gateway event. Events for already-terminal
// transactions succeed as no-ops; events for unknown references are parked in
// Redis and surfaced as ErrUnknownGatewayRef so the HTTP layer can still ack.
func (s *ReconciliationService) HandleEvent(ctx context.Context, ev Event) error {
	if ev.GatewayRef == "" {
		return fmt.Errorf("event missing gateway reference")
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	t, err := s.store.Queries().GetTransactionByGatewayRef(ctx, ev.GatewayRef)
	if err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			if parkErr := s.park(ctx, ev); parkErr != nil {
				return fmt.Errorf("park event for %s: %w", ev.GatewayRef, parkErr)
			}
			observability.IncrementWebhookEvent("parked")
			return fmt.Errorf("%w: %s", ErrUnknownGatewayRef, ev.GatewayRef)
		}
		return err
	}

	return s.apply(ctx, t, ev)
}

func (s *ReconciliationService) apply(ctx context.Context, t models.Transaction, ev Event) error {
	var err error
	switch domain.NormalizeStatus(ev.Status) {
	case "PAID", "COMPLETED", "CONFIRMED":
		err = s.ledger.ApplyCompletion(ctx, t.ID)
	case domain.TxStatusFailed:
		err = s.rejectFor(ctx, t, domain.TxStatusFailed, "failed at gateway")
	case domain.TxStatusCancelled:
		err = s.rejectFor(ctx, t, domain.TxStatusCancelled, "cancelled at gateway")
	case domain.TxStatusExpired:
		err = s.rejectFor(ctx, t, domain.TxStatusExpired, "expired at gateway")
	default:
		zap.L().Info("ignoring gateway event with unhandled status",
			zap.String("gateway_ref", ev.GatewayRef), zap.String("status", ev.Status))
		observability.IncrementWebhookEvent("ignored")
		return nil
	}

	if errors.Is(err, models.ErrAlreadyTerminal) {
		observability.IncrementWebhookEvent("duplicate")
		return nil
	}
	if err != nil {
		observability.IncrementWebhookEvent("error")
		return err
	}
	observability.IncrementWebhookEvent("applied")
	return nil
}

// rejectFor maps a failure report onto the terminal status the transaction
// type supports. Withdrawals have no EXPIRED or CANCELLED state; any failure
// report refunds through REJECTED-adjacent FAILED.
func (s *ReconciliationService) rejectFor(ctx context.Context, t models.Transaction, status, reason string) error {
	if t.Type == domain.TxTypeWithdrawal {
		status = domain.TxStatusFailed
	}
	return s.ledger.ApplyRejection(ctx, t.ID, status, reason, nil)
}

func (s *ReconciliationService) park(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, parkedEventsKey, payload).Err()
}

// RetryParked drains the parked-event list once, re-applying each event.
// Events whose reference is still unknown, or whose apply fails, go back to
// the end of the list until they age out. Returns how many events were applied.
func (s *ReconciliationService) RetryParked(ctx context.Context) (int, error) {
	length, err := s.rdb.LLen(ctx, parkedEventsKey).Result()
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := int64(0); i < length; i++ {
		raw, err := s.rdb.LPop(ctx, parkedEventsKey).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return applied, err
		}

		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			zap.L().Warn("dropping malformed parked event", zap.Error(err))
			continue
		}
		if time.Since(ev.ReceivedAt) > parkedEventMaxAge {
			zap.L().Warn("dropping aged-out parked event",
				zap.String("gateway_ref", ev.GatewayRef), zap.Time("received_at", ev.ReceivedAt))
			observability.IncrementWebhookEvent("aged_out")
			continue
		}

		t, err := s.store.Queries().GetTransactionByGatewayRef(ctx, ev.GatewayRef)
		if err != nil {
			if errors.Is(err, models.ErrTransactionNotFound) {
				if pushErr := s.rdb.RPush(ctx, parkedEventsKey, raw).Err(); pushErr != nil {
					return applied, pushErr
				}
				continue
			}
			return applied, err
		}
		if err := s.apply(ctx, t, ev); err != nil {
			// The gateway was already acked; losing the event here would
			// mean no redelivery ever comes. Back of the list until it
			// applies or ages out.
			zap.L().Error("parked event retry failed",
				zap.Error(err), zap.String("gateway_ref", ev.GatewayRef))
			if pushErr := s.rdb.RPush(ctx, parkedEventsKey, raw).Err(); pushErr != nil {
				return applied, pushErr
			}
			continue
		}
		applied++
	}

	if size, err := s.rdb.LLen(ctx, parkedEventsKey).Result(); err == nil {
		observability.SetParkedEvents(int(size))
	}
	return applied, nil
}
