// Command storefront is a terminal storefront: it picks the nearest branch,
// shows its menu and routes orders to it using the same session rules as the
// web storefront.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/client"
	"github.com/branchline/api/internal/events"
	"github.com/branchline/api/internal/geo"
	"github.com/branchline/api/internal/logger"
)

const usage = `usage: storefront [flags] <command> [args]

commands:
  branches                      list branches, nearest first when -lat/-lon are set
  select <branch-id>            bind this device to a branch
  clear                         forget the bound branch
  menu                          show the bound branch menu
  order <item-id>:<qty>[:note]  submit an order to the bound branch
  status <order-number>         show an order status
  watch                         poll the bound branch orders (staff token)
`

type app struct {
	api      *client.API
	session  *client.Session
	selector *client.Selector
	router   *client.Router
	log      *zap.Logger
}

func main() {
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()
	apiURL := flag.String("api", envOr("STOREFRONT_API_URL", "http://localhost:8081"), "API base URL")
	token := flag.String("token", os.Getenv("STOREFRONT_TOKEN"), "Bearer token for order submission")
	sessionPath := flag.String("session", envOr("STOREFRONT_SESSION", filepath.Join(home, ".branchline", "session.json")), "Session file")
	lat := flag.String("lat", os.Getenv("STOREFRONT_LAT"), "Device latitude")
	lon := flag.String("lon", os.Getenv("STOREFRONT_LON"), "Device longitude")
	lang := flag.String("lang", "ar", "Status badge language (ar or en)")
	name := flag.String("name", "", "Customer name")
	phone := flag.String("phone", "", "Customer phone")
	email := flag.String("email", "", "Customer email")
	notes := flag.String("notes", "", "Order notes")
	timeout := flag.Duration("timeout", client.DefaultSubmitTimeout, "Order submission timeout")
	interval := flag.Duration("interval", client.DefaultPollInterval, "Poll interval for watch")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage); flag.PrintDefaults() }
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Development: true, Level: level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	point, err := parsePoint(*lat, *lon)
	if err != nil {
		log.Fatal("invalid coordinates", zap.Error(err))
	}

	session, err := client.NewSession(client.FileStore{Path: *sessionPath})
	if err != nil {
		log.Fatal("load session", zap.Error(err))
	}
	if _, err := client.EnsureDeviceID(session, time.Now, rand.Reader); err != nil {
		log.Fatal("device id", zap.Error(err))
	}

	bus := events.NewBus(log.Named("events"))
	bus.SubscribeAll(func(_ context.Context, e events.Event) {
		log.Debug("order event", zap.String("type", string(e.Type)), zap.String("message", e.Message))
	})

	api := client.NewAPI(*apiURL, client.WithToken(*token), client.WithLogger(log.Named("api")))
	a := &app{
		api:      api,
		session:  session,
		selector: client.NewSelector(api, client.StaticLocator{Point: point}, session, log.Named("selector")),
		router:   client.NewRouter(api, session, bus, log.Named("router"), client.WithSubmitTimeout(*timeout)),
		log:      log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	switch args[0] {
	case "branches":
		err = a.branches(ctx)
	case "select":
		err = a.selectBranch(args[1:])
	case "clear":
		err = a.selector.Clear()
	case "menu":
		err = a.menu(ctx)
	case "order":
		err = a.order(ctx, args[1:], client.Customer{Name: *name, Phone: *phone, Email: *email}, *notes)
	case "status":
		err = a.status(ctx, args[1:], *lang)
	case "watch":
		err = a.watch(ctx, *interval)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		if errors.Is(err, client.ErrNoBranchSelected) {
			fmt.Fprintln(os.Stderr, "no branch selected: run `storefront branches` then `storefront select <branch-id>`")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "storefront: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) branches(ctx context.Context) error {
	ranked, err := a.selector.ResolveAndRank(ctx)
	if err != nil {
		return err
	}
	bound := a.session.BranchID()
	for _, r := range ranked {
		mark := " "
		if r.Item.ID == bound {
			mark = "*"
		}
		dist := "      -"
		if r.DistanceKm != nil {
			dist = fmt.Sprintf("%5.1fkm", *r.DistanceKm)
		}
		fmt.Printf("%s %s  %s  %s\n", mark, r.Item.ID, dist, r.Item.Name)
	}
	return nil
}

func (a *app) selectBranch(args []string) error {
	if len(args) != 1 {
		return errors.New("select needs a branch id")
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("branch id: %w", err)
	}
	return a.selector.Select(id)
}

func (a *app) menu(ctx context.Context) error {
	bid, err := a.selector.RequireSelection()
	if err != nil {
		return err
	}
	m, err := a.api.Menu(ctx, bid)
	if err != nil {
		if client.IsNotFound(err) {
			// The bound branch was deactivated; make the user choose again.
			_ = a.selector.Clear()
			return client.ErrNoBranchSelected
		}
		return err
	}
	fmt.Printf("%s\n", m.Branch.Name)
	for _, cat := range sortedKeys(m.Items) {
		fmt.Printf("\n[%s]\n", cat)
		for _, it := range m.Items[cat] {
			fmt.Printf("  %s  %8s  %s\n", it.ID, it.Price.StringFixed(2), it.Name)
		}
	}
	return nil
}

func (a *app) order(ctx context.Context, args []string, customer client.Customer, notes string) error {
	bid, err := a.selector.RequireSelection()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("order needs at least one <item-id>:<qty>[:note]")
	}
	m, err := a.api.Menu(ctx, bid)
	if err != nil {
		return err
	}
	prices := make(map[uuid.UUID]client.MenuItem)
	for _, items := range m.Items {
		for _, it := range items {
			prices[it.ID] = it
		}
	}

	cart := client.Cart{Notes: notes}
	for _, arg := range args {
		line, err := parseLine(arg, prices)
		if err != nil {
			return err
		}
		cart.Lines = append(cart.Lines, line)
	}

	conf, err := a.router.SubmitOrder(ctx, cart, customer)
	if err != nil {
		var subErr *client.SubmissionError
		if errors.As(err, &subErr) {
			for field, msg := range subErr.Fields {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
			}
			if subErr.Retryable {
				fmt.Fprintln(os.Stderr, "the order may be retried")
			}
		}
		return err
	}
	fmt.Printf("order %s %s total %s\n", conf.OrderNumber, conf.Status, conf.Total.StringFixed(2))
	return nil
}

func (a *app) status(ctx context.Context, args []string, lang string) error {
	if len(args) != 1 {
		return errors.New("status needs an order number")
	}
	st, err := a.api.OrderStatus(ctx, args[0], lang)
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s (%s)  %s\n", st.OrderNumber, st.Badge.Label, st.Status, st.UpdatedAt.Local().Format(time.DateTime))
	return nil
}

func (a *app) watch(ctx context.Context, interval time.Duration) error {
	bid, err := a.selector.RequireSelection()
	if err != nil {
		return err
	}
	p := client.NewPoller(a.api, bid, client.OrderQuery{Limit: 20}, interval, a.log.Named("poller"))
	p.OnUpdate = func(page *client.OrderPage) {
		fmt.Printf("%s  %d orders, %s total\n", time.Now().Format(time.TimeOnly), page.Stats.Total, page.Stats.TotalAmount.StringFixed(2))
		for _, o := range page.Orders {
			fmt.Printf("  %s  %-10s  %8s\n", o.OrderNumber, o.Status, o.TotalAmount.StringFixed(2))
		}
	}
	p.OnError = func(err error) { fmt.Fprintf(os.Stderr, "poll: %v\n", err) }
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// parseLine reads <item-id>:<qty>[:note] and prices it from the menu.
func parseLine(arg string, menu map[uuid.UUID]client.MenuItem) (client.CartLine, error) {
	parts := strings.SplitN(arg, ":", 3)
	if len(parts) < 2 {
		return client.CartLine{}, fmt.Errorf("%q: want <item-id>:<qty>[:note]", arg)
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return client.CartLine{}, fmt.Errorf("%q: item id: %w", arg, err)
	}
	qty, err := strconv.Atoi(parts[1])
	if err != nil || qty < 1 {
		return client.CartLine{}, fmt.Errorf("%q: quantity must be a positive integer", arg)
	}
	item, ok := menu[id]
	if !ok {
		return client.CartLine{}, fmt.Errorf("%q: not on this branch menu", arg)
	}
	line := client.CartLine{MenuItemID: id, Name: item.Name, Quantity: qty, Price: item.Price}
	if len(parts) == 3 {
		line.Note = parts[2]
	}
	return line, nil
}

func parsePoint(lat, lon string) (*geo.Point, error) {
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, errors.New("set both -lat and -lon")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, fmt.Errorf("lat: %w", err)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, fmt.Errorf("lon: %w", err)
	}
	return geo.NewPoint(&la, &lo), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
