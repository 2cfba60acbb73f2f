package commands

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"coinbot/internal/economy"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeWarning
)

func (o Outcome) String() string {
	if o == OutcomeWarning {
		return "warning"
	}
	return "success"
}

// InternalErrorText is sent when a command fails on a storage error.
const InternalErrorText = "Ocorreu um problema interno ao executar este comando."

// Request is one chat command as seen by a transport. Mentions holds the
// user ids the transport resolved from the message, in message order.
type Request struct {
	UserID   string
	Command  string
	Args     []string
	Mentions []string
	Now      time.Time
}

// Reply is the rendered answer. Mentions lists user ids the transport must
// tag. Transient replies carry a reaction the transport clears after a
// short wait.
type Reply struct {
	Text      string
	Mentions  []string
	Outcome   Outcome
	Transient bool
}

type Observer interface {
	ObserveCommand(transport, command string)
}

type Router struct {
	engine    *economy.Engine
	prefix    string
	transport string
	mention   func(userID string) string
	clock     func() time.Time
	obs       Observer
	log       *slog.Logger
}

type Option func(*Router)

// WithMentionFormat sets how a mentioned user is written in reply text.
func WithMentionFormat(fn func(userID string) string) Option {
	return func(r *Router) {
		if fn != nil {
			r.mention = fn
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(r *Router) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func WithObserver(transport string, obs Observer) Option {
	return func(r *Router) {
		r.transport = transport
		r.obs = obs
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.log = logger
		}
	}
}

func NewRouter(engine *economy.Engine, prefix string, opts ...Option) *Router {
	r := &Router{
		engine:  engine,
		prefix:  prefix,
		mention: JIDMention,
		clock:   time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Prefix() string {
	return r.prefix
}

// JIDMention renders "5511999999999@s.whatsapp.net" as "@5511999999999".
func JIDMention(userID string) string {
	user, _, _ := strings.Cut(userID, "@")
	return "@" + user
}

// PendingText is the placeholder shown while a command runs.
func (r *Router) PendingText(command string) string {
	return fmt.Sprintf("⏳ Processando comando *%s%s*...", r.prefix, command)
}

// Handle runs one command. Expected rejections come back as warning replies;
// only storage failures return an error.
func (r *Router) Handle(ctx context.Context, req Request) (Reply, error) {
	now := req.Now
	if now.IsZero() {
		now = r.clock()
	}
	canonical, known := Resolve(req.Command)
	if !known {
		return warning(fmt.Sprintf("Comando de economia não reconhecido: %s.", req.Command)), nil
	}
	if r.obs != nil {
		r.obs.ObserveCommand(r.transport, canonical)
	}

	var (
		reply Reply
		err   error
	)
	switch canonical {
	case Balance:
		reply, err = r.balance(ctx, req)
	case Earn:
		reply, err = r.earn(ctx, req, now)
	case Shop:
		reply = r.shop()
	case Buy:
		if len(req.Args) == 0 {
			reply = r.shop()
		} else {
			reply, err = r.buy(ctx, req, now)
		}
	case Inventory:
		reply, err = r.inventory(ctx, req)
	case Transfer:
		reply, err = r.transfer(ctx, req, now)
	}
	if err != nil {
		r.log.Error("command failed", "command", canonical, "user_id", req.UserID, "err", err)
		return Reply{}, err
	}
	return reply, nil
}

func (r *Router) balance(ctx context.Context, req Request) (Reply, error) {
	bal, err := r.engine.CheckBalance(ctx, req.UserID)
	if err != nil {
		return Reply{}, err
	}
	reply := success(fmt.Sprintf("💰 Seu saldo atual é: *%s*.", money(bal)))
	reply.Transient = true
	return reply, nil
}

func (r *Router) earn(ctx context.Context, req Request, now time.Time) (Reply, error) {
	res, err := r.engine.Earn(ctx, req.UserID, now)
	if err != nil {
		return Reply{}, err
	}
	switch res.Reason {
	case economy.ReasonNone:
		return success(fmt.Sprintf("🎉 Você trabalhou e ganhou *%s*! Seu novo saldo é: *%s*.",
			money(res.Reward), money(res.NewBalance))), nil
	case economy.ReasonCooldownActive:
		return warning(fmt.Sprintf("Você precisa descansar! Tente novamente em *%d minuto(s)*.",
			ceilMinutes(res.CooldownRemaining))), nil
	default:
		return warning(fmt.Sprintf("Seu saldo (%s) atingiu o limite e não pode receber mais.", money(res.NewBalance))), nil
	}
}

func (r *Router) shop() Reply {
	var b strings.Builder
	b.WriteString("🛒 *Itens disponíveis na loja:*\n\n")
	for _, item := range r.engine.Shop() {
		fmt.Fprintf(&b, "*%s* - %s\n", item.Name, money(item.Price))
		fmt.Fprintf(&b, "_%s_\n\n", item.Description)
	}
	fmt.Fprintf(&b, "Para comprar, use: *%scomprar <nome do item>*", r.prefix)
	return success(b.String())
}

func (r *Router) buy(ctx context.Context, req Request, now time.Time) (Reply, error) {
	query := strings.Join(req.Args, " ")
	res, err := r.engine.Purchase(ctx, req.UserID, query, now)
	if err != nil {
		return Reply{}, err
	}
	switch res.Reason {
	case economy.ReasonNone:
		return success(fmt.Sprintf("🛍️ Você comprou *%s* por *%s*! Seu novo saldo é: *%s*.",
			res.Item.Name, money(res.Item.Price), money(res.NewBalance))), nil
	case economy.ReasonInsufficientFunds:
		return warning(fmt.Sprintf("Seu saldo (%s) é insuficiente para comprar *%s* (%s).",
			money(res.Balance), res.Item.Name, money(res.Item.Price))), nil
	default:
		return warning(fmt.Sprintf("O item \"%s\" não foi encontrado na loja. Use *%sloja* para ver a lista.",
			query, r.prefix)), nil
	}
}

func (r *Router) inventory(ctx context.Context, req Request) (Reply, error) {
	counts, err := r.engine.Inventory(ctx, req.UserID)
	if err != nil {
		return Reply{}, err
	}
	if len(counts) == 0 {
		return success("🎒 Seu inventário está vazio."), nil
	}

	var b strings.Builder
	b.WriteString("🎒 *Seu inventário:*\n\n")
	for _, item := range r.engine.Shop() {
		if n := counts[item.ID]; n > 0 {
			fmt.Fprintf(&b, "*%s* (x%d)\n", item.Name, n)
			delete(counts, item.ID)
		}
	}
	// Items no longer in the catalog are listed by id.
	rest := make([]string, 0, len(counts))
	for id := range counts {
		rest = append(rest, id)
	}
	sort.Strings(rest)
	for _, id := range rest {
		fmt.Fprintf(&b, "*%s* (x%d)\n", id, counts[id])
	}
	return success(b.String()), nil
}

func (r *Router) transfer(ctx context.Context, req Request, now time.Time) (Reply, error) {
	if len(req.Args) < 2 {
		return warning(fmt.Sprintf("Uso correto: *%stransferir @usuário <valor>*", r.prefix)), nil
	}
	var recipient string
	if len(req.Mentions) > 0 {
		recipient = req.Mentions[0]
	}
	// Unparseable amounts go through the engine as zero so the rejection is
	// recorded like any other.
	amount, _ := economy.ParseAmount(req.Args[len(req.Args)-1])

	res, err := r.engine.Transfer(ctx, req.UserID, recipient, amount, now)
	if err != nil {
		return Reply{}, err
	}
	switch res.Reason {
	case economy.ReasonNone:
		reply := success(fmt.Sprintf("💸 Você transferiu *%s* para %s! Seu novo saldo é: *%s*.",
			money(res.Amount), r.mention(recipient), money(res.SenderBalance)))
		reply.Mentions = []string{recipient}
		return reply, nil
	case economy.ReasonRecipientNotFound:
		return warning("Você precisa mencionar um usuário para transferir."), nil
	case economy.ReasonSelfTransfer:
		return warning("Você não pode transferir dinheiro para si mesmo!"), nil
	case economy.ReasonInsufficientFunds:
		return warning(fmt.Sprintf("Seu saldo (%s) é insuficiente para transferir *%s*.",
			money(res.SenderBalance), money(res.Amount))), nil
	default:
		if amount.Valid() {
			reply := warning(fmt.Sprintf("%s não pode receber *%s*: o saldo atingiria o limite.",
				r.mention(recipient), money(res.Amount)))
			reply.Mentions = []string{recipient}
			return reply, nil
		}
		return warning("O valor da transferência deve ser um número positivo."), nil
	}
}

func money(a economy.Amount) string {
	return "R$ " + a.String()
}

func ceilMinutes(d time.Duration) int64 {
	return int64(math.Ceil(d.Minutes()))
}

func success(text string) Reply {
	return Reply{Text: text, Outcome: OutcomeSuccess}
}

func warning(text string) Reply {
	return Reply{Text: text, Outcome: OutcomeWarning}
}
