package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zegl/eligo/internal/metrics"
	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/shardqueue"
	"github.com/zegl/eligo/internal/store"
)

// Dispatcher turns boosts into notifications for the other participants of
// the list. Work runs detached from the request that created the boost.
type Dispatcher struct {
	store    store.Store
	notifier Notifier
	exec     *shardqueue.ShardExecutor
	log      zerolog.Logger
	timeout  time.Duration

	wg sync.WaitGroup
}

func NewDispatcher(s store.Store, n Notifier, exec *shardqueue.ShardExecutor, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    s,
		notifier: n,
		exec:     exec,
		log:      log.With().Str("component", "notify").Logger(),
		timeout:  10 * time.Second,
	}
}

// BoostCreated schedules notifications for b and returns immediately.
func (d *Dispatcher) BoostCreated(b model.Boost) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.dispatch(ctx, b)
	}()
}

// Wait blocks until every scheduled boost has been resolved and its
// deliveries handed to the executor.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) dispatch(ctx context.Context, b model.Boost) {
	msg, recipients, err := d.Plan(ctx, b)
	if err != nil {
		if model.IsNotFoundError(err) {
			d.log.Debug().Str("boost", b.ID).Err(err).Msg("boost references vanished, no notification")
			return
		}
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		d.log.Error().Stack().Str("boost", b.ID).Err(err).Msg("resolve boost notification")
		return
	}
	for _, uid := range recipients {
		uid := uid
		job := shardqueue.JobFunc(func(ctx context.Context) error {
			if err := d.notifier.Notify(ctx, uid, msg); err != nil {
				d.log.Warn().Str("user", uid).Err(err).Msg("notification attempt failed")
				return err
			}
			metrics.NotificationsTotal.WithLabelValues("sent").Inc()
			return nil
		})
		if err := d.exec.Submit(context.Background(), uid, job); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			d.log.Error().Str("user", uid).Err(err).Msg("enqueue notification")
		}
	}
}

// Plan resolves the message for b and its recipients: the list owner and
// members, minus the booster. Deleted lists and items count as missing.
func (d *Dispatcher) Plan(ctx context.Context, b model.Boost) (Message, []string, error) {
	booster, err := d.store.Users().Get(ctx, b.UserID)
	if err != nil {
		return Message{}, nil, err
	}
	l, err := d.store.Lists().Get(ctx, b.ListID)
	if err != nil {
		return Message{}, nil, err
	}
	if l.Deleted() {
		return Message{}, nil, model.NewNotFoundError(model.KindList, l.ID)
	}
	it, err := d.store.Items().Get(ctx, b.ItemID)
	if err != nil {
		return Message{}, nil, err
	}
	if it.Deleted() {
		return Message{}, nil, model.NewNotFoundError(model.KindItem, it.ID)
	}
	ms, err := d.store.Memberships().ListByList(ctx, l.ID)
	if err != nil {
		return Message{}, nil, err
	}

	set := map[string]struct{}{l.UserID: {}}
	for _, m := range ms {
		set[m.UserID] = struct{}{}
	}
	delete(set, b.UserID)
	recipients := make([]string, 0, len(set))
	for uid := range set {
		recipients = append(recipients, uid)
	}
	sort.Strings(recipients)

	msg := Message{
		Title: "New boost",
		Body:  fmt.Sprintf("%s boosted %s in %s", booster.Name, it.Text, l.Title),
	}
	return msg, recipients, nil
}
