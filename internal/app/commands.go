package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"github.com/xenking/orderdesk/internal/dashboard"
	"github.com/xenking/orderdesk/internal/domain/order"
	"github.com/xenking/orderdesk/pkg/health"
)

// ErrUsage is returned for malformed command lines.
var ErrUsage = errors.New("usage")

type command struct {
	usage string
	run   func(ctx context.Context, r *runner, args []string) error
}

var commands = map[string]command{
	"login":     {"login -token T [-refresh-token R]", cmdLogin},
	"logout":    {"logout", cmdLogout},
	"refresh":   {"refresh", cmdRefresh},
	"pending":   {"pending [-force]", cmdPending},
	"delivered": {"delivered [-force]", cmdDelivered},
	"show":      {"show ID", cmdShow},
	"items":     {"items [-page N] [-size N] [-force]", cmdItems},
	"create":    {"create -f FILE", cmdCreate},
	"status":    {"status ID STATUS", cmdStatus},
	"deliver":   {"deliver [-truck N] ID", cmdDeliver},
	"assign":    {"assign ID TRUCK", cmdAssign},
	"cancel":    {"cancel ID", cmdCancel},
	"stats":     {"stats", cmdStats},
	"sales":     {"sales [-date YYYY-MM-DD] daily|weekly|monthly", cmdSales},
	"report":    {"report daily [-date D] | report truck -truck N [-from D] [-to D]", cmdReport},
	"watch":     {"watch [-interval D]", cmdWatch},
	"schedule":  {"schedule [-spec CRON]", cmdSchedule},
}

// runner carries what every command needs.
type runner struct {
	s   *Session
	cfg *Config
	lg  *zap.Logger

	mu  sync.Mutex
	out io.Writer
}

func (r *runner) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// execute dispatches args[0] to its command.
func execute(ctx context.Context, r *runner, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(r.out)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(r.out)
		return errors.Wrapf(ErrUsage, "unknown command %q", args[0])
	}
	if err := cmd.run(ctx, r, args[1:]); err != nil {
		if errors.Is(err, ErrUsage) {
			return errors.Wrap(err, cmd.usage)
		}
		return errors.Wrap(err, args[0])
	}
	return nil
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Usage: orderdesk COMMAND [ARGS]")
	fmt.Fprintln(w)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(ErrUsage, err.Error())
	}
	return nil
}

// positional parses the flag set and returns exactly n positional arguments.
func positional(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if fs.NArg() != n {
		return nil, errors.Wrapf(ErrUsage, "expected %d argument(s), got %d", n, fs.NArg())
	}
	return fs.Args(), nil
}

func cmdLogin(ctx context.Context, r *runner, args []string) error {
	fs := newFlagSet("login")
	token := fs.String("token", "", "bearer token")
	refreshToken := fs.String("refresh-token", "", "refresh token")
	if _, err := positional(fs, args, 0); err != nil {
		return err
	}
	if *token == "" {
		return errors.Wrap(ErrUsage, "token is required")
	}
	if err := r.s.Login(ctx, *token, *refreshToken); err != nil {
		return err
	}
	r.printf("Logged in\n")
	return nil
}

func cmdLogout(ctx context.Context, r *runner, args []string) error {
	if _, err := positional(newFlagSet("logout"), args, 0); err != nil {
		return err
	}
	if err := r.s.Logout(ctx); err != nil {
		return err
	}
	r.printf("Logged out\n")
	return nil
}

func cmdRefresh(ctx context.Context, r *runner, args []string) error {
	if _, err := positional(newFlagSet("refresh"), args, 0); err != nil {
		return err
	}
	token, err := r.s.Auth.RefreshToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		r.printf("No token issued\n")
		return nil
	}
	r.printf("Token refreshed\n")
	return nil
}

func cmdPending(ctx context.Context, r *runner, args []string) error {
	return listOrders(ctx, r, "pending", args, r.s.Orders.PendingOrders)
}

func cmdDelivered(ctx context.Context, r *runner, args []string) error {
	return listOrders(ctx, r, "delivered", args, r.s.Orders.DeliveredOrders)
}

func listOrders(
	ctx context.Context, r *runner, name string, args []string,
	list func(ctx context.Context, forceRefresh bool) ([]order.Order, error),
) error {
	fs := newFlagSet(name)
	force := fs.Bool("force", false, "bypass the cache")
	if _, err := positional(fs, args, 0); err != nil {
		return err
	}
	orders, err := list(ctx, *force)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return writeOrders(r.out, orders)
}

func writeOrders(w io.Writer, orders []order.Order) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCUSTOMER\tTRUCK\tITEMS\tTOTAL\tDATE")
	for _, o := range orders {
		truck := "-"
		if o.HasTruck() {
			truck = fmt.Sprint(o.Truck.ID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			o.ID, o.Status, o.Customer.Name, truck, len(o.Items), o.TotalPrice.StringFixed(2), o.Date)
	}
	return tw.Flush()
}

func writeOrder(w io.Writer, o order.Order) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Order\t%d\n", o.ID)
	fmt.Fprintf(tw, "Status\t%s\n", o.Status)
	fmt.Fprintf(tw, "Date\t%s\n", o.Date)
	fmt.Fprintf(tw, "Customer\t%s (%s)\n", o.Customer.Name, o.Customer.PhoneNumber)
	fmt.Fprintf(tw, "Address\t%s\n", o.Customer.Address)
	if o.HasTruck() {
		fmt.Fprintf(tw, "Truck\t%d\n", o.Truck.ID)
	}
	for _, item := range o.Items {
		fmt.Fprintf(tw, "  %d x %s\t%s\n", item.Quantity, item.Name, item.Price.StringFixed(2))
	}
	fmt.Fprintf(tw, "Total\t%s\n", o.TotalPrice.StringFixed(2))
	return tw.Flush()
}

func cmdShow(ctx context.Context, r *runner, args []string) error {
	pos, err := positional(newFlagSet("show"), args, 1)
	if err != nil {
		return err
	}
	id, err := order.ParseID(pos[0])
	if err != nil {
		return err
	}
	o, err := r.s.Orders.OrderDetails(ctx, id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return writeOrder(r.out, o)
}

func cmdItems(ctx context.Context, r *runner, args []string) error {
	fs := newFlagSet("items")
	page := fs.Int("page", 0, "page number")
	size := fs.Int("size", 10, "page size")
	force := fs.Bool("force", false, "bypass HTTP caches")
	if _, err := positional(fs, args, 0); err != nil {
		return err
	}
	p, err := r.s.Orders.Items(ctx, *page, *size, *force)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE")
	for _, it := range p.Content {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", it.ID, it.Name, it.Price.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Page %d of %d (%d items)\n", p.Number+1, max(p.TotalPages, 1), p.TotalElements)
	return nil
}

func cmdCreate(ctx context.Context, r *runner, args []string) error {
	fs := newFlagSet("create")
	file := fs.String("f", "", "draft file (YAML or JSON), - for stdin")
	if _, err := positional(fs, args, 0); err != nil {
		return err
	}
	if *file == "" {
		return errors.Wrap(ErrUsage, "draft file is required")
	}

	var in io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return errors.Wrap(err, "open draft")
		}
		defer func() { _ = f.Close() }()
		in = f
	}
	draft, err := readDraft(in)
	if err != nil {
		return err
	}

	o, err := r.s.Orders.CreateOrder(ctx, draft)
	if err != nil {
		return err
	}
	r.printf("Order %d created, total %s\n", o.ID, o.TotalPrice.StringFixed(2))
	return nil
}

func cmdStatus(ctx context.Context, r *runner, args []string) error {
	pos, err := positional(newFlagSet("status"), args, 2)
	if err != nil {
		return err
	}
	id, err := order.ParseID(pos[0])
	if err != nil {
		return err
	}
	o, err := r.s.Orders.UpdateOrderStatus(ctx, id, order.Status(strings.ToUpper(pos[1])))
	if err != nil {
		return err
	}
	r.printf("Order %d is %s\n", id, orStatus(o.Status, pos[1]))
	return nil
}

func cmdDeliver(ctx context.Context, r *runner, args []string) error {
	fs := newFlagSet("deliver")
	truck := fs.Int64("truck", 0, "truck to assign before delivery")
	pos, err := positional(fs, args, 1)
	if err != nil {
		return err
	}
	id, err := order.ParseID(pos[0])
	if err != nil {
		return err
	}
	if _, err := r.s.Orders.MarkOrderAsDelivered(ctx, id, *truck); err != nil {
		return err
	}
	r.printf("Order %d delivered\n", id)
	return nil
}

func cmdAssign(ctx context.Context, r *runner, args []string) error {
	pos, err := positional(newFlagSet("assign"), args, 2)
	if err != nil {
		return err
	}
	id, err := order.ParseID(pos[0])
	if err != nil {
		return err
	}
	truckID, err := order.ParseID(pos[1])
	if err != nil {
		return errors.Wrap(err, "truck")
	}
	if _, err := r.s.Orders.AssignTruckToOrder(ctx, id, truckID); err != nil {
		return err
	}
	r.printf("Truck %d assigned to order %d\n", truckID, id)
	return nil
}

func cmdCancel(ctx context.Context, r *runner, args []string) error {
	pos, err := positional(newFlagSet("cancel"), args, 1)
	if err != nil {
		return err
	}
	id, err := order.ParseID(pos[0])
	if err != nil {
		return err
	}
	res, err := r.s.Orders.CancelOrder(ctx, id)
	if err != nil {
		return err
	}
	r.printf("%s\n", res.Message)
	return nil
}

func cmdStats(ctx context.Context, r *runner, args []string) error {
	if _, err := positional(newFlagSet("stats"), args, 0); err != nil {
		return err
	}
	raw, err := r.s.Dashboard.Statistics(ctx)
	if err != nil {
		return err
	}
	r.printf("%s\n", raw)
	return nil
}

func cmdSales(ctx context.Context, r *runner, args []string) error {
	fs := newFlagSet("sales")
	date := fs.String("date", "", "day (YYYY-MM-DD), defaults to today")
	pos, err := positional(fs, args, 1)
	if err != nil {
		return err
	}

	var (
		raw jx.Raw
		day = dashboard.Day(*date)
	)
	switch pos[0] {
	case "daily":
		raw, err = r.s.Dashboard.DailySales(ctx, day)
	case "weekly":
		raw, err = r.s.Dashboard.WeeklySales(ctx, day)
	case "monthly":
		raw, err = r.s.Dashboard.MonthlySales(ctx, day)
	default:
		return errors.Wrapf(ErrUsage, "unknown period %q", pos[0])
	}
	if err != nil {
		return err
	}
	r.printf("%s\n", raw)
	return nil
}

func cmdReport(ctx context.Context, r *runner, args []string) error {
	if len(args) == 0 {
		return errors.Wrap(ErrUsage, "report kind is required")
	}

	var (
		a   dashboard.Artifact
		err error
	)
	switch kind := args[0]; kind {
	case "daily":
		fs := newFlagSet("report daily")
		date := fs.String("date", "", "day (YYYY-MM-DD), defaults to today")
		if _, err := positional(fs, args[1:], 0); err != nil {
			return err
		}
		a, err = r.s.Dashboard.DailySalesPDF(ctx, dashboard.Day(*date))
	case "truck":
		fs := newFlagSet("report truck")
		truck := fs.Int64("truck", 0, "truck id")
		from := fs.String("from", "", "first day (YYYY-MM-DD), defaults to today")
		to := fs.String("to", "", "last day (YYYY-MM-DD), defaults to today")
		if _, err := positional(fs, args[1:], 0); err != nil {
			return err
		}
		a, err = r.s.Dashboard.TruckDeliveryReport(ctx, *truck, dashboard.Day(*from), dashboard.Day(*to))
	default:
		return errors.Wrapf(ErrUsage, "unknown report %q", kind)
	}
	if err != nil {
		return err
	}

	path, err := a.Save(r.cfg.ReportDir)
	if err != nil {
		return err
	}
	r.printf("Saved %s (%d bytes)\n", path, len(a.Data))
	return nil
}

// cmdWatch keeps both listings fresh until ctx is done. The repository runs
// in polling mode so every tick reaches the backend.
func cmdWatch(ctx context.Context, r *runner, args []string) error {
	fs := newFlagSet("watch")
	interval := fs.Duration("interval", r.cfg.PollInterval, "refresh interval")
	if _, err := positional(fs, args, 0); err != nil {
		return err
	}
	if *interval <= 0 {
		return errors.Wrap(ErrUsage, "interval must be positive")
	}

	repo := r.s.Orders
	repo.SetPolling(true)
	defer repo.SetPolling(false)

	mon := health.New(
		health.WithLogger(r.lg.Named("watch")),
		health.WithOnChange(func(name string, healthy bool, err error) {
			if healthy {
				r.printf("%s: reachable again\n", name)
				return
			}
			r.printf("%s: unreachable: %v\n", name, err)
		}),
	)
	for name, list := range map[string]func(context.Context, bool) ([]order.Order, error){
		"pending":   repo.PendingOrders,
		"delivered": repo.DeliveredOrders,
	} {
		mon.AddCheck(name, r.cfg.Timeout, func(ctx context.Context) error {
			orders, err := list(ctx, false)
			if err != nil {
				return err
			}
			r.printf("%s: %d orders\n", name, len(orders))
			return nil
		})
	}

	mon.Start(ctx, *interval)
	<-ctx.Done()
	mon.Stop()

	for _, c := range mon.Runs() {
		r.lg.Info("Watch finished", zap.String("check", c.Name), zap.Int64("runs", c.Runs))
	}
	return nil
}

func cmdSchedule(ctx context.Context, r *runner, args []string) error {
	fs := newFlagSet("schedule")
	spec := fs.String("spec", r.cfg.ReportSpec, "cron schedule of the daily sales report")
	if _, err := positional(fs, args, 0); err != nil {
		return err
	}

	job := newReportJob(r.s.Dashboard, r.cfg.ReportDir, r.lg)
	if err := job.Start(ctx, *spec); err != nil {
		return errors.Wrap(ErrUsage, err.Error())
	}
	<-ctx.Done()
	job.Stop()
	return nil
}

func orStatus(s order.Status, def string) order.Status {
	if s == "" {
		return order.Status(strings.ToUpper(def))
	}
	return s
}
