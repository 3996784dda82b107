package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"TowerMerge/internal/game/card"
	"TowerMerge/internal/game/dealer"
	"TowerMerge/internal/game/rules"
	"TowerMerge/internal/game/state"
	"TowerMerge/internal/utils"
	"TowerMerge/internal/websocket"
)

// Options 对局参数
type Options struct {
	HandSize     int
	StartingGold int
	RoundIncome  int
	Costs        rules.CostSchedule
	StartingDeck []card.ID
	// Decks 按玩家覆盖起始牌组
	Decks map[string][]card.ID
}

func (o Options) withDefaults() Options {
	if o.HandSize <= 0 {
		o.HandSize = 5
	}
	if o.Costs == (rules.CostSchedule{}) {
		o.Costs = rules.DefaultSchedule
	}
	return o
}

type outgoing struct {
	to     []string
	msg    websocket.OutgoingMessage
	direct bool // 只发给单个玩家
}

// Engine owns one match. All state changes happen on the actionLoop goroutine; publishing to the hub
// happens on publishLoop so a slow transport never stalls actions.
type Engine struct {
	Match   *state.Match
	Dealer  *dealer.Dealer
	Catalog card.Catalog
	Hub     websocket.HubInterface

	opts       Options
	acted      map[string]bool
	stats      statBook
	actionChan chan Action
	outbox     chan outgoing
	quit       chan struct{}
	stopOnce   sync.Once
	started    bool
}

func NewEngine(m *state.Match, catalog card.Catalog, hub websocket.HubInterface, opts Options) *Engine {
	return &Engine{
		Match:      m,
		Dealer:     dealer.NewDealer(time.Now().UnixNano()),
		Catalog:    catalog,
		Hub:        hub,
		opts:       opts.withDefaults(),
		acted:      make(map[string]bool, len(m.Players)),
		stats:      newStatBook(m.Players),
		actionChan: make(chan Action, 32),
		outbox:     make(chan outgoing, 256),
		quit:       make(chan struct{}),
	}
}

// Start 发起始手牌 + 广播 + 启动 action loop；只能调用一次
func (e *Engine) Start() {
	if e.started {
		return
	}
	e.started = true

	for _, id := range e.Match.Players {
		p := e.Match.States[id]
		deck := e.opts.StartingDeck
		if d, ok := e.opts.Decks[id]; ok {
			deck = d
		}
		e.Dealer.Deal(p, deck, e.opts.HandSize)
		p.Gold = e.opts.StartingGold
	}
	e.publishAll()

	go e.publishLoop()
	go e.actionLoop()
}

// Stop ends both loops. Pending and later actions fail with ErrStopped.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.quit) })
}

func (e *Engine) actionLoop() {
	for {
		select {
		case a := <-e.actionChan:
			v, err := e.handleAction(a)
			a.reply <- result{value: v, err: err}
		case <-e.quit:
			return
		}
	}
}

func (e *Engine) publishLoop() {
	for {
		select {
		case o := <-e.outbox:
			e.deliver(o)
		case <-e.quit:
			// 停止前已入队的消息（例如 match_finished）照常送出
			for {
				select {
				case o := <-e.outbox:
					e.deliver(o)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) deliver(o outgoing) {
	if o.direct {
		e.Hub.SendToPlayer(o.to[0], o.msg)
	} else {
		e.Hub.BroadcastToPlayers(o.to, o.msg)
	}
}

// ---------------------
//    ACTION ENTRY
// ---------------------

func (e *Engine) PlaceCard(ctx context.Context, player string, pc PlaceCard) error {
	_, err := e.submit(ctx, Action{Player: player, Kind: ActionPlaceCard, Payload: pc})
	return err
}

func (e *Engine) EndRound(ctx context.Context, player string) error {
	_, err := e.submit(ctx, Action{Player: player, Kind: ActionEndRound})
	return err
}

func (e *Engine) Continue(ctx context.Context, player string) error {
	_, err := e.submit(ctx, Action{Player: player, Kind: ActionContinue})
	return err
}

func (e *Engine) UpgradeTower(ctx context.Context, player string) error {
	_, err := e.submit(ctx, Action{Player: player, Kind: ActionUpgradeTower})
	return err
}

// Finish ends the match. The winner is decided by game logic outside the engine; "" means no winner.
func (e *Engine) Finish(ctx context.Context, winner string) (Report, error) {
	v, err := e.submit(ctx, Action{Kind: actionFinish, Payload: finish{Winner: winner}})
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

// Snapshot reads the player's private view through the action loop.
func (e *Engine) Snapshot(ctx context.Context, player string) (PlayerView, error) {
	v, err := e.submit(ctx, Action{Player: player, Kind: actionSnapshot})
	if err != nil {
		return PlayerView{}, err
	}
	return v.(PlayerView), nil
}

func (e *Engine) submit(ctx context.Context, a Action) (any, error) {
	select {
	case <-e.quit:
		return nil, ErrStopped
	default:
	}
	a.reply = make(chan result, 1)
	select {
	case e.actionChan <- a:
	case <-e.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-a.reply:
		return r.value, r.err
	case <-e.quit:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ---------------------
//    ACTION HANDLING
// ---------------------

func (e *Engine) handleAction(a Action) (any, error) {
	if a.Kind == actionFinish {
		return e.finish(a.Payload.(finish))
	}

	p, ok := e.Match.States[a.Player]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, a.Player)
	}
	if a.Kind == actionSnapshot {
		return e.playerView(a.Player), nil
	}
	if e.Match.Phase == state.PhaseFinished {
		return nil, fmt.Errorf("%w: match finished", ErrInvalidPhase)
	}

	var err error
	switch a.Kind {
	case ActionPlaceCard:
		pc, ok := a.Payload.(PlaceCard)
		if !ok {
			return nil, fmt.Errorf("%w: place_card payload %T", ErrUnknownAction, a.Payload)
		}
		err = e.placeCard(p, pc)
	case ActionEndRound:
		err = e.endRound(p)
	case ActionContinue:
		err = e.continueRound(p)
	case ActionUpgradeTower:
		err = e.upgradeTower(p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}
	if err != nil {
		utils.Log.Debug("action rejected", "match", e.Match.ID, "player", a.Player, "action", a.Kind, "err", err)
	}
	return nil, err
}

func (e *Engine) requirePhase(p *state.Player, phase state.Phase) error {
	if e.Match.Phase != phase {
		return fmt.Errorf("%w: match is in %s, need %s", ErrInvalidPhase, e.Match.Phase, phase)
	}
	if e.acted[p.ID] {
		return fmt.Errorf("%w: %s already finished this %s phase", ErrInvalidPhase, p.ID, phase)
	}
	return nil
}

func (e *Engine) placeCard(p *state.Player, pc PlaceCard) error {
	if err := e.requirePhase(p, state.PhasePlaying); err != nil {
		return err
	}
	merges, err := rules.PlaceCardAndMaybeMerge(p, pc.HandIndex, pc.Slot, pc.Card)
	if err != nil {
		return err
	}

	e.stats.add(p.ID, StatCardsPlayed, 1)
	e.stats.add(p.ID, StatMerges, float64(len(merges)))
	for _, s := range p.Board {
		e.stats.raise(p.ID, StatHighestStack, float64(s.Stack))
	}

	e.send(p.ID, EventState, e.playerView(p.ID))
	if len(merges) > 0 {
		e.broadcast(EventMerged, MergedPayload{Player: p.ID, Merges: merges})
	}
	e.broadcast(EventMatch, e.matchView())
	return nil
}

func (e *Engine) endRound(p *state.Player) error {
	if err := e.requirePhase(p, state.PhasePlaying); err != nil {
		return err
	}
	e.acted[p.ID] = true
	if !e.allActed() {
		e.send(p.ID, EventState, e.playerView(p.ID))
		e.broadcast(EventMatch, e.matchView())
		return nil
	}
	if err := e.enterShop(); err != nil {
		e.acted[p.ID] = false
		return err
	}
	return nil
}

// enterShop runs the shop transition for every player. It is all-or-nothing: states are transformed
// on clones and only committed if every player succeeds.
func (e *Engine) enterShop() error {
	next := make(map[string]*state.Player, len(e.Match.Players))
	discarded := make(map[string][]card.ID, len(e.Match.Players))
	for _, id := range e.Match.Players {
		c := e.Match.States[id].Clone()
		res, err := rules.PrepareShopTransition(c, e.Catalog, e.Dealer.Shuffle)
		if err != nil {
			return fmt.Errorf("shop transition for %s: %w", id, err)
		}
		if len(res.Unknown) > 0 {
			utils.Log.Warn("cards kept on board", "match", e.Match.ID, "player", id, "cards", res.Unknown, "reason", rules.ErrUnknownArchetype)
		}
		next[id] = c
		discarded[id] = res.Discarded
	}

	for id, c := range next {
		e.Match.States[id] = c
		e.stats.add(id, StatCardsDiscarded, float64(len(discarded[id])))
	}
	e.Match.Phase = state.PhaseShop
	clear(e.acted)

	utils.Log.Info("shop opened", "match", e.Match.ID, "round", e.Match.Round)
	e.broadcast(EventShopOpened, ShopPayload{Round: e.Match.Round, Discarded: discarded})
	e.publishAll()
	return nil
}

func (e *Engine) continueRound(p *state.Player) error {
	if err := e.requirePhase(p, state.PhaseShop); err != nil {
		return err
	}
	e.acted[p.ID] = true
	if !e.allActed() {
		e.send(p.ID, EventState, e.playerView(p.ID))
		e.broadcast(EventMatch, e.matchView())
		return nil
	}

	e.Match.Round++
	for _, id := range e.Match.Players {
		pl := e.Match.States[id]
		pl.Gold += e.opts.RoundIncome
		dealer.Draw(pl, e.opts.HandSize)
	}
	e.Match.Phase = state.PhasePlaying
	clear(e.acted)

	utils.Log.Info("round started", "match", e.Match.ID, "round", e.Match.Round)
	e.broadcast(EventRoundStarted, map[string]any{"round": e.Match.Round})
	e.publishAll()
	return nil
}

func (e *Engine) upgradeTower(p *state.Player) error {
	if err := e.requirePhase(p, state.PhaseShop); err != nil {
		return err
	}
	cost := e.opts.Costs.Cost(e.Match.Round, p.Tower.LastUpgradeRound)
	if p.Gold < cost {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientGold, p.Gold, cost)
	}
	p.Gold -= cost
	p.Tower.Level++
	p.Tower.LastUpgradeRound = e.Match.Round

	e.stats.add(p.ID, StatGoldSpent, float64(cost))
	e.stats.set(p.ID, StatTowerLevel, float64(p.Tower.Level))

	e.send(p.ID, EventState, e.playerView(p.ID))
	e.broadcast(EventTowerUpgraded, TowerPayload{Player: p.ID, Level: p.Tower.Level, Cost: cost})
	return nil
}

func (e *Engine) finish(f finish) (any, error) {
	if e.Match.Phase == state.PhaseFinished {
		return nil, fmt.Errorf("%w: match already finished", ErrInvalidPhase)
	}
	if f.Winner != "" && !e.Match.Has(f.Winner) {
		return nil, fmt.Errorf("%w: winner %s", ErrUnknownPlayer, f.Winner)
	}
	e.Match.Phase = state.PhaseFinished
	clear(e.acted)

	r := Report{
		MatchID: e.Match.ID,
		Winner:  f.Winner,
		Rounds:  e.Match.Round,
		Stats:   e.stats.snapshot(),
	}
	utils.Log.Info("match finished", "match", e.Match.ID, "winner", f.Winner, "rounds", r.Rounds)
	e.broadcast(EventFinished, r)
	return r, nil
}

func (e *Engine) allActed() bool {
	for _, id := range e.Match.Players {
		if !e.acted[id] {
			return false
		}
	}
	return true
}

// ---------------------
//       PUBLISH
// ---------------------

func (e *Engine) publishAll() {
	for _, id := range e.Match.Players {
		e.send(id, EventState, e.playerView(id))
	}
	e.broadcast(EventMatch, e.matchView())
}

func (e *Engine) send(player, event string, data any) {
	e.enqueue(outgoing{to: []string{player}, msg: websocket.OutgoingMessage{Event: event, Data: data}, direct: true})
}

func (e *Engine) broadcast(event string, data any) {
	e.enqueue(outgoing{to: slices.Clone(e.Match.Players), msg: websocket.OutgoingMessage{Event: event, Data: data}})
}

func (e *Engine) enqueue(o outgoing) {
	select {
	case e.outbox <- o:
	default:
		utils.Log.Warn("outbox full, dropping message", "match", e.Match.ID, "event", o.msg.Event)
	}
}

// IsRejection reports whether err is a rule or phase rejection rather than an engine failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidPhase) || errors.Is(err, ErrUnknownPlayer) ||
		errors.Is(err, ErrInsufficientGold) || errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, rules.ErrInvalidPlacement)
}
