// Package ingest applies crawler reports: it writes product history, creates
// products discovered through the queue, resolves queue entries and records
// stock-transition notifications, all in one transaction per report.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/canonical"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/database"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/domain"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/metrics"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/notify"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/pricing"
	"github.com/jonesrussell/north-cloud/price-tracker/internal/queue"
)

// Outcome tells the caller whether a report created anything.
type Outcome int

const (
	// OutcomeAccepted is a report that wrote no history.
	OutcomeAccepted Outcome = iota
	// OutcomeCreated is a report that wrote history or created a product.
	OutcomeCreated
)

func (o Outcome) String() string {
	if o == OutcomeCreated {
		return "created"
	}
	return "accepted"
}

// QueueRef identifies the queue entry a new-product report answers.
type QueueRef struct {
	Hash      string `json:"hash"`
	Shop      string `json:"shop"`
	URL       string `json:"url"`
	Requester string `json:"requester"`
}

// Result describes what a report changed.
type Result struct {
	Outcome        Outcome
	Product        *domain.Product
	History        *domain.HistoryRecord
	ProductCreated bool
	Resolved       int64
	Notifications  int
}

// Dispatcher delivers committed notifications.
type Dispatcher interface {
	DispatchAsync(notifications []domain.Notification)
}

// Ingestor applies crawler reports.
type Ingestor struct {
	store       database.Store
	canon       queue.Canonicalizer
	coordinator *queue.Coordinator
	notifier    *notify.Notifier
	dispatcher  Dispatcher
	metrics     *metrics.Metrics
	log         logger.Logger
}

// NewIngestor wires an ingestor.
func NewIngestor(
	store database.Store,
	canon queue.Canonicalizer,
	coordinator *queue.Coordinator,
	notifier *notify.Notifier,
	dispatcher Dispatcher,
	m *metrics.Metrics,
	log logger.Logger,
) *Ingestor {
	return &Ingestor{
		store:       store,
		canon:       canon,
		coordinator: coordinator,
		notifier:    notifier,
		dispatcher:  dispatcher,
		metrics:     m,
		log:         log,
	}
}

// txState collects what a report did inside its transaction.
type txState struct {
	result        Result
	notifications []domain.Notification
}

// ReportExisting applies a report for a known product.
func (in *Ingestor) ReportExisting(ctx context.Context, crawlerID, productID string, report Report) (*Result, error) {
	var st txState

	err := in.store.InTx(ctx, func(tx database.Store) error {
		if _, err := tx.GetCrawler(ctx, crawlerID); err != nil {
			return err
		}
		product, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		st.result.Product = product

		switch r := report.(type) {
		case SkipReport, ChangeLocationReport:
			return nil
		case NotFoundReport, AgeRestrictionReport:
			return in.applyTerminal(ctx, tx, crawlerID, product, report.Status(), &st)
		case OKReport:
			return in.applyOK(ctx, tx, crawlerID, product, r, nil, &st)
		default:
			return fmt.Errorf("unsupported report %T", report)
		}
	})

	return in.finish(report, &st, err)
}

// ReportNew applies a report for a queued URL. The product is created on the
// first ok report for the hash; concurrent creators converge on one product.
func (in *Ingestor) ReportNew(ctx context.Context, crawlerID string, ref QueueRef, report Report) (*Result, error) {
	if err := in.checkRef(ref); err != nil {
		in.metrics.ReportsTotal.WithLabelValues(string(report.Status()), "rejected").Inc()
		return nil, err
	}

	var st txState

	err := in.store.InTx(ctx, func(tx database.Store) error {
		if _, err := tx.GetCrawler(ctx, crawlerID); err != nil {
			return err
		}

		product, err := tx.GetProductByHash(ctx, ref.Hash)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			product = nil
			if entryErr := in.requireEntry(ctx, tx, ref); entryErr != nil {
				return entryErr
			}
		case err != nil:
			return err
		default:
			if _, userErr := tx.GetUser(ctx, ref.Requester); userErr != nil {
				return userErr
			}
			if product, err = tx.LockProduct(ctx, product.ID); err != nil {
				return err
			}
		}
		st.result.Product = product

		coordinator := in.coordinator.Bind(tx)

		switch r := report.(type) {
		case SkipReport:
			return nil
		case ChangeLocationReport:
			if product != nil {
				return nil
			}
			return coordinator.SkipForCrawler(ctx, ref.Hash, crawlerID)
		case NotFoundReport, AgeRestrictionReport:
			if product != nil {
				return in.applyTerminal(ctx, tx, crawlerID, product, report.Status(), &st)
			}
			st.result.Resolved, err = coordinator.Resolve(ctx, ref.Hash)
			return err
		case OKReport:
			if product == nil {
				if product, st.result.ProductCreated, err = in.createProduct(ctx, tx, ref, r.Title); err != nil {
					return err
				}
				st.result.Product = product
			}
			return in.applyOK(ctx, tx, crawlerID, product, r, []string{ref.Requester}, &st)
		default:
			return fmt.Errorf("unsupported report %T", report)
		}
	})

	return in.finish(report, &st, err)
}

// checkRef verifies that ref names a canonical URL with its own shop and hash.
func (in *Ingestor) checkRef(ref QueueRef) error {
	for field, value := range map[string]string{
		"hash": ref.Hash, "shop": ref.Shop, "url": ref.URL, "requester": ref.Requester,
	} {
		if value == "" {
			return domain.NewValidationError(field, domain.CodeMissingField, "is required")
		}
	}

	id, err := in.canon.Canonicalize(ref.URL)
	if err != nil {
		return canonical.AsValidationError("url", err)
	}
	if id.URL != ref.URL || id.Shop != ref.Shop || id.Hash != ref.Hash {
		return domain.NewValidationError("hash", domain.CodeIdentityMismatch,
			"url, shop and hash do not describe the same canonical product")
	}
	return nil
}

// requireEntry fails with NotFound unless ref matches a pending queue entry.
func (in *Ingestor) requireEntry(ctx context.Context, tx database.Store, ref QueueRef) error {
	entries, err := in.coordinator.Bind(tx).Entries(ctx, ref.Hash)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.URL == ref.URL && e.RequestedBy == ref.Requester {
			return nil
		}
	}
	return domain.NewNotFound("queue entry", ref.Hash)
}

// createProduct inserts the product for ref. A lost race returns the winner
// and false.
func (in *Ingestor) createProduct(
	ctx context.Context,
	tx database.Store,
	ref QueueRef,
	title string,
) (*domain.Product, bool, error) {
	product := &domain.Product{
		IdentityHash: ref.Hash,
		Shop:         ref.Shop,
		URL:          ref.URL,
		Title:        title,
		Status:       domain.ProductStatusActive,
	}

	err := tx.CreateProduct(ctx, product)
	if errors.Is(err, domain.ErrIdentityConflict) {
		in.metrics.CreateConflicts.Inc()
		winner, loadErr := tx.GetProductByHash(ctx, ref.Hash)
		if loadErr == nil {
			winner, loadErr = tx.LockProduct(ctx, winner.ID)
		}
		if loadErr != nil {
			return nil, false, fmt.Errorf("load concurrently created product: %w", loadErr)
		}
		in.log.Info("Product created concurrently, using existing row",
			logger.String("product_id", winner.ID),
			logger.String("identity_hash", ref.Hash),
		)
		return winner, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create product: %w", err)
	}

	in.metrics.ProductsCreated.Inc()
	in.log.Info("Product created",
		logger.String("product_id", product.ID),
		logger.String("shop", product.Shop),
		logger.String("url", product.URL),
	)
	return product, true, nil
}

// applyTerminal writes a priceless history record and resolves the queue.
func (in *Ingestor) applyTerminal(
	ctx context.Context,
	tx database.Store,
	crawlerID string,
	product *domain.Product,
	status domain.HistoryStatus,
	st *txState,
) error {
	rec := &domain.HistoryRecord{ProductID: product.ID, CrawlerID: crawlerID, Status: status}
	if err := tx.InsertHistory(ctx, rec); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	st.result.History = rec

	resolved, err := in.coordinator.Bind(tx).Resolve(ctx, product.IdentityHash)
	if err != nil {
		return err
	}
	st.result.Resolved = resolved
	return nil
}

// applyOK writes the history record, refreshes the product title, records
// notifications for the stock transition it causes, resolves the queue and
// seeds ownerships for every resolved requester plus extraOwners. The caller
// holds the product's row lock.
func (in *Ingestor) applyOK(
	ctx context.Context,
	tx database.Store,
	crawlerID string,
	product *domain.Product,
	report OKReport,
	extraOwners []string,
	st *txState,
) error {
	before, err := pricing.NewResolver(tx).Summary(ctx, product.ID)
	if err != nil {
		return err
	}

	title := report.Title
	rec := &domain.HistoryRecord{
		ProductID:     product.ID,
		CrawlerID:     crawlerID,
		Status:        domain.StatusOK,
		OriginalPrice: report.OriginalPrice,
		DiscountPrice: report.DiscountPrice,
		InStock:       report.InStock,
		Title:         &title,
	}
	if err = tx.InsertHistory(ctx, rec); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	st.result.History = rec

	if report.Title != product.Title {
		if err = tx.SetProductTitle(ctx, product.ID, report.Title); err != nil {
			return fmt.Errorf("update title: %w", err)
		}
		product.Title = report.Title
	}

	price := report.Price()
	transition := notify.Evaluate(before, report.InStock)
	st.notifications, err = in.notifier.Apply(ctx, tx, *product, transition, price)
	if err != nil {
		return err
	}
	st.result.Notifications = len(st.notifications)

	coordinator := in.coordinator.Bind(tx)
	entries, err := coordinator.Entries(ctx, product.IdentityHash)
	if err != nil {
		return err
	}
	if st.result.Resolved, err = coordinator.Resolve(ctx, product.IdentityHash); err != nil {
		return err
	}

	owners := slices.Clone(extraOwners)
	for _, e := range entries {
		owners = append(owners, e.RequestedBy)
	}
	slices.Sort(owners)
	for _, userID := range slices.Compact(owners) {
		if _, _, err = lifecycle.Own(ctx, tx, userID, product, price); err != nil {
			return err
		}
	}
	return nil
}

// finish records metrics and hands notifications to the dispatcher once
// the transaction has committed.
func (in *Ingestor) finish(report Report, st *txState, err error) (*Result, error) {
	status := string(report.Status())
	if err != nil {
		in.metrics.ReportsTotal.WithLabelValues(status, "rejected").Inc()
		return nil, err
	}

	if st.result.History != nil {
		in.metrics.HistoryWritten.WithLabelValues(status).Inc()
	}
	if st.result.History != nil || st.result.ProductCreated {
		st.result.Outcome = OutcomeCreated
	}
	in.metrics.ReportsTotal.WithLabelValues(status, st.result.Outcome.String()).Inc()

	if len(st.notifications) > 0 {
		in.dispatcher.DispatchAsync(st.notifications)
	}

	fields := []logger.Field{
		logger.String("status", status),
		logger.String("outcome", st.result.Outcome.String()),
		logger.Int64("resolved", st.result.Resolved),
		logger.Int("notifications", st.result.Notifications),
	}
	if st.result.Product != nil {
		fields = append(fields, logger.String("product_id", st.result.Product.ID))
	}
	in.log.Info("Crawl report applied", fields...)

	return &st.result, nil
}
