package worker

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"invoicesync/internal/config"
	"invoicesync/internal/database"
	"invoicesync/internal/domain"
	"invoicesync/internal/lexware"
	"invoicesync/internal/models"
	"invoicesync/internal/repository"
	"invoicesync/internal/storefront"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAccounting struct {
	mock.Mock
}

func (m *mockAccounting) SyncContact(ctx context.Context, s config.SyncSettings, order *models.Order, contactID string) (string, error) {
	args := m.Called(ctx, s, order, contactID)
	return args.String(0), args.Error(1)
}

func (m *mockAccounting) CreateInvoice(ctx context.Context, s config.SyncSettings, order *models.Order, contactID string) (*lexware.VoucherResult, error) {
	args := m.Called(ctx, s, order, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lexware.VoucherResult), args.Error(1)
}

func (m *mockAccounting) CreateCreditNote(ctx context.Context, s config.SyncSettings, order *models.Order, invoiceID string) (*lexware.VoucherResult, error) {
	args := m.Called(ctx, s, order, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lexware.VoucherResult), args.Error(1)
}

type staticSettings struct {
	s config.SyncSettings
}

func (p staticSettings) Snapshot(context.Context) (config.SyncSettings, error) {
	return p.s, nil
}

type recordingAlerter struct {
	mu      sync.Mutex
	subject []string
}

func (a *recordingAlerter) Alert(_ context.Context, subject, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subject = append(a.subject, subject)
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subject)
}

type recordingEmailer struct {
	orders []int64
	err    error
	onSend func()
}

func (e *recordingEmailer) EmailInvoice(_ context.Context, order *models.Order) error {
	e.orders = append(e.orders, order.ID)
	if e.onSend != nil {
		e.onSend()
	}
	return e.err
}

type recordingDeadLetters struct {
	tasks []models.SyncTask
}

func (d *recordingDeadLetters) PushDeadLetter(_ context.Context, task models.SyncTask) error {
	d.tasks = append(d.tasks, task)
	return nil
}

type fixture struct {
	db          *database.DB
	store       *storefront.MemoryStore
	client      *mockAccounting
	locker      *repository.MemoryLocker
	alerter     *recordingAlerter
	emailer     *recordingEmailer
	deadLetters *recordingDeadLetters
	settings    config.SyncSettings
	proc        *Processor
}

func testSettings() config.SyncSettings {
	return config.SyncSettings{
		TriggerStatuses:  []string{"completed"},
		MaxAttempts:      3,
		AutoSyncContacts: true,
		NotifyOnError:    true,
		Invoice: config.InvoiceSettings{
			Title:          "Rechnung",
			PaymentTerms:   models.DefaultPaymentTerms,
			PaymentDueDays: models.DefaultPaymentDueDays,
		},
	}
}

func newFixture(t *testing.T, mutate ...func(*config.SyncSettings)) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "queue.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		db:          db,
		store:       storefront.NewMemoryStore(),
		client:      new(mockAccounting),
		locker:      repository.NewMemoryLocker(),
		alerter:     &recordingAlerter{},
		emailer:     &recordingEmailer{},
		deadLetters: &recordingDeadLetters{},
		settings:    testSettings(),
	}
	for _, m := range mutate {
		m(&f.settings)
	}
	f.proc = NewProcessor(db, f.store, f.client, staticSettings{s: f.settings}, f.locker,
		RetryPolicy{Interval: time.Hour, LockWait: 100 * time.Millisecond}, &logger,
		WithAlerter(f.alerter), WithEmailer(f.emailer), WithDeadLetters(f.deadLetters))
	return f
}

func testOrder(id int64, meta map[string]string) *models.Order {
	return &models.Order{
		ID:            id,
		Number:        strconv.FormatInt(id, 10),
		Status:        "completed",
		Currency:      "EUR",
		PaymentMethod: "bacs",
		Billing: models.BillingAddress{
			FirstName: "Erika",
			LastName:  "Mustermann",
			Address1:  "Hauptstr. 1",
			Postcode:  "10115",
			City:      "Berlin",
			Country:   "DE",
			Email:     "erika@example.com",
		},
		Items: []models.LineItem{{
			ID:          1,
			Name:        "Widget",
			Quantity:    2,
			Subtotal:    decimal.RequireFromString("16.81"),
			SubtotalTax: decimal.RequireFromString("3.19"),
		}},
		Total:    decimal.RequireFromString("20.00"),
		TotalTax: decimal.RequireFromString("3.19"),
		Meta:     meta,
	}
}

func (f *fixture) enqueue(t *testing.T, orderID int64, action models.SyncAction) int64 {
	t.Helper()
	ok, err := f.db.Enqueue(context.Background(), orderID, action)
	require.NoError(t, err)
	require.True(t, ok)
	task, err := f.db.FindPending(context.Background(), orderID, action)
	require.NoError(t, err)
	return task.ID
}

func (f *fixture) linkage(t *testing.T, orderID int64) models.Linkage {
	t.Helper()
	order, err := f.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	return order.Linkage()
}

func orderID(id int64) any {
	return mock.MatchedBy(func(o *models.Order) bool { return o.ID == id })
}

func TestProcessNext_CreateInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Put(testOrder(1001, nil))
	f.enqueue(t, 1001, models.ActionCreateInvoice)

	f.client.On("SyncContact", mock.Anything, mock.Anything, orderID(1001), "").Return("c-1", nil).Once()
	f.client.On("CreateInvoice", mock.Anything, mock.Anything, orderID(1001), "c-1").
		Return(&lexware.VoucherResult{ID: "inv-123", VoucherNumber: "RE0001"}, nil).Once()

	task, err := f.proc.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)
	assert.Equal(t, 1, task.Attempts)
	require.NotNil(t, task.ExternalInvoiceID)
	assert.Equal(t, "inv-123", *task.ExternalInvoiceID)

	link := f.linkage(t, 1001)
	assert.Equal(t, "inv-123", link.InvoiceID)
	assert.Equal(t, "RE0001", link.InvoiceNumber)
	assert.Equal(t, "c-1", link.ContactID)
	assert.False(t, link.Voided)
	assert.Equal(t, testOrder(1001, nil).ItemsFingerprint(), link.ItemsHash)
	assert.Equal(t, []string{"Lexware Rechnung erstellt: RE0001 (ID: inv-123)"}, f.store.Notes(1001))

	_, err = f.proc.ProcessNext(ctx)
	assert.ErrorIs(t, err, database.ErrNoTask)
	f.client.AssertExpectations(t)
	assert.Empty(t, f.emailer.orders)
}

func TestProcessNext_CreateWithoutContactSync(t *testing.T) {
	f := newFixture(t, func(s *config.SyncSettings) { s.AutoSyncContacts = false })
	f.store.Put(testOrder(1003, nil))
	f.enqueue(t, 1003, models.ActionCreateInvoice)

	f.client.On("CreateInvoice", mock.Anything, mock.Anything, orderID(1003), "").
		Return(&lexware.VoucherResult{ID: "inv-9"}, nil).Once()

	task, err := f.proc.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)
	f.client.AssertNotCalled(t, "SyncContact", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{"Lexware Rechnung erstellt: - (ID: inv-9)"}, f.store.Notes(1003))
}

func TestProcessNext_CreateIsNoOpWithActiveInvoice(t *testing.T) {
	f := newFixture(t)
	f.store.Put(testOrder(1004, map[string]string{models.MetaInvoiceID: "inv-old"}))
	f.enqueue(t, 1004, models.ActionCreateInvoice)

	task, err := f.proc.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)
	require.NotNil(t, task.ExternalInvoiceID)
	assert.Equal(t, "inv-old", *task.ExternalInvoiceID)
	f.client.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.store.Notes(1004))
}

func TestProcessNext_VoidInvoice(t *testing.T) {
	f := newFixture(t)
	f.store.Put(testOrder(1002, map[string]string{models.MetaInvoiceID: "inv-7"}))
	f.enqueue(t, 1002, models.ActionVoidInvoice)

	f.client.On("CreateCreditNote", mock.Anything, mock.Anything, orderID(1002), "inv-7").
		Return(&lexware.VoucherResult{ID: "cn-1"}, nil).Once()

	task, err := f.proc.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)
	require.NotNil(t, task.ExternalInvoiceID)
	assert.Equal(t, "cn-1", *task.ExternalInvoiceID)

	link := f.linkage(t, 1002)
	assert.True(t, link.Voided)
	assert.Equal(t, "cn-1", link.CreditNoteID)
	assert.Equal(t, "inv-7", link.InvoiceID)
	assert.Equal(t, []string{"Lexware Gutschrift erstellt (ID: cn-1)"}, f.store.Notes(1002))
	f.client.AssertExpectations(t)
}

func TestProcessNext_VoidAlreadyVoided(t *testing.T) {
	f := newFixture(t)
	f.store.Put(testOrder(1005, map[string]string{
		models.MetaInvoiceID:     "inv-7",
		models.MetaCreditNoteID:  "cn-1",
		models.MetaInvoiceVoided: "yes",
	}))
	f.enqueue(t, 1005, models.ActionVoidInvoice)

	task, err := f.proc.ProcessNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, task.ExternalInvoiceID)
	assert.Equal(t, "cn-1", *task.ExternalInvoiceID)
	f.client.AssertNotCalled(t, "CreateCreditNote", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessNext_VoidWithoutInvoice(t *testing.T) {
	f := newFixture(t)
	f.store.Put(testOrder(1006, nil))
	f.enqueue(t, 1006, models.ActionVoidInvoice)

	task, err := f.proc.ProcessNext(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoInvoice)

	var taskErr *TaskError
	require.True(t, errors.As(err, &taskErr))
	assert.Equal(t, 1, taskErr.Attempts)

	assert.Equal(t, models.TaskFailed, task.Status)
	require.NotNil(t, task.ErrorMessage)
	assert.Equal(t, models.ErrNoInvoice.Error(), *task.ErrorMessage)
}

func TestProcessNext_OrderNotFoundConsumesAttempt(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, 4040, models.ActionCreateInvoice)

	task, err := f.proc.ProcessNext(context.Background())
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Equal(t, 1, task.Attempts)
	require.NotNil(t, task.ErrorMessage)
	assert.Contains(t, *task.ErrorMessage, "order not found")
}

func TestProcessNext_RetriesUntilExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Put(testOrder(1007, map[string]string{models.MetaContactID: "c-7"}))
	id := f.enqueue(t, 1007, models.ActionCreateInvoice)

	f.client.On("SyncContact", mock.Anything, mock.Anything, orderID(1007), "c-7").Return("c-7", nil)
	f.client.On("CreateInvoice", mock.Anything, mock.Anything, orderID(1007), "c-7").
		Return(nil, &lexware.APIError{Status: 500, Message: "boom"})

	for attempt := 1; attempt <= 3; attempt++ {
		task, err := f.proc.ProcessNext(ctx)
		var apiErr *lexware.APIError
		require.True(t, errors.As(err, &apiErr), "attempt %d", attempt)
		assert.Equal(t, id, task.ID)
		assert.Equal(t, attempt, task.Attempts)
		assert.Equal(t, models.TaskFailed, task.Status)
	}

	_, err := f.proc.ProcessNext(ctx)
	assert.ErrorIs(t, err, database.ErrNoTask)

	_, err = f.proc.ProcessTask(ctx, id)
	assert.ErrorIs(t, err, ErrNotEligible)

	f.client.AssertNumberOfCalls(t, "CreateInvoice", 3)
	assert.Equal(t, 3, f.alerter.count())
	require.Len(t, f.deadLetters.tasks, 1)
	assert.Equal(t, id, f.deadLetters.tasks[0].ID)
	assert.Equal(t, 3, f.deadLetters.tasks[0].Attempts)

	errs, err := f.db.RecentErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, errs, 3)
	assert.Equal(t, "Synchronisierung fehlgeschlagen: create_invoice", errs[0].Title)
	assert.Contains(t, errs[0].Context, "kind=api temporary=true")
	assert.Empty(t, f.linkage(t, 1007).InvoiceID)
}

func TestProcessNext_NoAlertWhenDisabled(t *testing.T) {
	f := newFixture(t, func(s *config.SyncSettings) { s.NotifyOnError = false })
	f.enqueue(t, 4041, models.ActionCreateInvoice)

	_, err := f.proc.ProcessNext(context.Background())
	require.Error(t, err)
	assert.Zero(t, f.alerter.count())
}

func TestProcessNext_UpdateInvoice(t *testing.T) {
	f := newFixture(t)
	f.store.Put(testOrder(1008, map[string]string{
		models.MetaInvoiceID: "inv-1",
		models.MetaContactID: "c-8",
	}))
	f.enqueue(t, 1008, models.ActionUpdateInvoice)

	f.client.On("CreateCreditNote", mock.Anything, mock.Anything, orderID(1008), "inv-1").
		Return(&lexware.VoucherResult{ID: "cn-8"}, nil).Once()
	f.client.On("SyncContact", mock.Anything, mock.Anything, orderID(1008), "c-8").Return("c-8", nil).Once()
	f.client.On("CreateInvoice", mock.Anything, mock.Anything, orderID(1008), "c-8").
		Return(&lexware.VoucherResult{ID: "inv-2", VoucherNumber: "RE0002"}, nil).Once()

	task, err := f.proc.ProcessNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, task.ExternalInvoiceID)
	assert.Equal(t, "inv-2", *task.ExternalInvoiceID)

	link := f.linkage(t, 1008)
	assert.Equal(t, "inv-2", link.InvoiceID)
	assert.Equal(t, "cn-8", link.CreditNoteID)
	assert.False(t, link.Voided)
	f.client.AssertExpectations(t)
}

func TestProcessNext_UpdateRetryAfterVoid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Put(testOrder(1009, map[string]string{models.MetaInvoiceID: "inv-1"}))
	f.enqueue(t, 1009, models.ActionUpdateInvoice)

	f.client.On("CreateCreditNote", mock.Anything, mock.Anything, orderID(1009), "inv-1").
		Return(&lexware.VoucherResult{ID: "cn-9"}, nil).Once()
	f.client.On("SyncContact", mock.Anything, mock.Anything, orderID(1009), "").Return("c-9", nil)
	f.client.On("SyncContact", mock.Anything, mock.Anything, orderID(1009), "c-9").Return("c-9", nil)
	f.client.On("CreateInvoice", mock.Anything, mock.Anything, orderID(1009), "c-9").
		Return(nil, &lexware.APIError{Status: 503, Message: "unavailable"}).Once()

	_, err := f.proc.ProcessNext(ctx)
	require.Error(t, err)

	link := f.linkage(t, 1009)
	assert.Empty(t, link.InvoiceID)
	assert.Equal(t, "cn-9", link.CreditNoteID)

	f.client.On("CreateInvoice", mock.Anything, mock.Anything, orderID(1009), "c-9").
		Return(&lexware.VoucherResult{ID: "inv-3"}, nil).Once()

	task, err := f.proc.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)
	assert.Equal(t, 2, task.Attempts)
	assert.Equal(t, "inv-3", f.linkage(t, 1009).InvoiceID)
	f.client.AssertNumberOfCalls(t, "CreateCreditNote", 1)
}

func TestProcessNext_UpdateAfterCancellationKeepsInvoiceVoided(t *testing.T) {
	f := newFixture(t, func(s *config.SyncSettings) { s.AutoSyncContacts = false })
	ctx := context.Background()
	f.store.Put(testOrder(1101, map[string]string{models.MetaInvoiceID: "inv-1"}))
	f.enqueue(t, 1101, models.ActionVoidInvoice)
	f.enqueue(t, 1101, models.ActionUpdateInvoice)

	f.client.On("CreateCreditNote", mock.Anything, mock.Anything, orderID(1101), "inv-1").
		Return(&lexware.VoucherResult{ID: "cn-1"}, nil).Once()

	task, err := f.proc.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ActionVoidInvoice, task.Action)

	task, err = f.proc.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ActionUpdateInvoice, task.Action)
	assert.Equal(t, models.TaskCompleted, task.Status)

	link := f.linkage(t, 1101)
	assert.Equal(t, "inv-1", link.InvoiceID)
	assert.True(t, link.Voided)
	assert.Equal(t, "cn-1", link.CreditNoteID)
	f.client.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.client.AssertNumberOfCalls(t, "CreateCreditNote", 1)
}

func TestProcessNext_UpdateWithoutInvoice(t *testing.T) {
	f := newFixture(t)
	f.store.Put(testOrder(1010, nil))
	f.enqueue(t, 1010, models.ActionUpdateInvoice)

	_, err := f.proc.ProcessNext(context.Background())
	assert.ErrorIs(t, err, models.ErrNoInvoice)
}

func TestProcessNext_AutoSendEmail(t *testing.T) {
	f := newFixture(t, func(s *config.SyncSettings) {
		s.AutoSendEmail = true
		s.AutoSyncContacts = false
	})
	f.emailer.err = errors.New("smtp down")
	f.store.Put(testOrder(1011, nil))
	f.store.Put(testOrder(1012, map[string]string{models.MetaInvoiceID: "inv-x"}))
	f.enqueue(t, 1011, models.ActionCreateInvoice)
	f.enqueue(t, 1012, models.ActionCreateInvoice)

	f.client.On("CreateInvoice", mock.Anything, mock.Anything, orderID(1011), "").
		Return(&lexware.VoucherResult{ID: "inv-11"}, nil).Once()

	task, err := f.proc.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)

	_, err = f.proc.ProcessNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{1011}, f.emailer.orders)
}

func TestProcessNext_EmailSentAfterLockRelease(t *testing.T) {
	f := newFixture(t, func(s *config.SyncSettings) {
		s.AutoSendEmail = true
		s.AutoSyncContacts = false
	})
	ctx := context.Background()
	f.store.Put(testOrder(1019, nil))
	f.enqueue(t, 1019, models.ActionCreateInvoice)

	f.client.On("CreateInvoice", mock.Anything, mock.Anything, orderID(1019), "").
		Return(&lexware.VoucherResult{ID: "inv-19"}, nil).Once()

	var lockErr error
	f.emailer.onSend = func() {
		release, err := f.locker.Acquire(ctx, LockKey, time.Minute)
		lockErr = err
		if err == nil {
			_ = release(ctx)
		}
	}

	task, err := f.proc.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)
	assert.Equal(t, []int64{1019}, f.emailer.orders)
	assert.NoError(t, lockErr, "processor lock must be free while the invoice is e-mailed")
}

func TestProcessNext_Locked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enqueue(t, 1013, models.ActionCreateInvoice)

	release, err := f.locker.Acquire(ctx, LockKey, time.Minute)
	require.NoError(t, err)

	_, err = f.proc.ProcessNext(ctx)
	assert.ErrorIs(t, err, domain.ErrLocked)

	_, err = f.proc.ProcessTask(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrLocked)

	require.NoError(t, release(ctx))
	task, err := f.db.FindPending(ctx, 1013, models.ActionCreateInvoice)
	require.NoError(t, err)
	assert.Zero(t, task.Attempts)
}

func TestProcessTask_WaitsForRunningCycle(t *testing.T) {
	f := newFixture(t, func(s *config.SyncSettings) { s.AutoSyncContacts = false })
	ctx := context.Background()
	f.store.Put(testOrder(1018, nil))
	id := f.enqueue(t, 1018, models.ActionCreateInvoice)

	f.client.On("CreateInvoice", mock.Anything, mock.Anything, orderID(1018), "").
		Return(&lexware.VoucherResult{ID: "inv-18"}, nil).Once()

	release, err := f.locker.Acquire(ctx, LockKey, time.Minute)
	require.NoError(t, err)
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = release(ctx)
	}()

	task, err := f.proc.ProcessTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)
}

func TestProcessNext_ReleasesLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.proc.ProcessNext(ctx)
	assert.ErrorIs(t, err, database.ErrNoTask)

	release, err := f.locker.Acquire(ctx, LockKey, time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestProcessTask(t *testing.T) {
	f := newFixture(t, func(s *config.SyncSettings) { s.AutoSyncContacts = false })
	ctx := context.Background()
	f.store.Put(testOrder(1014, nil))
	f.store.Put(testOrder(1015, nil))
	f.enqueue(t, 1014, models.ActionCreateInvoice)
	second := f.enqueue(t, 1015, models.ActionCreateInvoice)

	f.client.On("CreateInvoice", mock.Anything, mock.Anything, orderID(1015), "").
		Return(&lexware.VoucherResult{ID: "inv-15"}, nil).Once()

	task, err := f.proc.ProcessTask(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, second, task.ID)
	assert.Equal(t, models.TaskCompleted, task.Status)

	task, err = f.proc.ProcessTask(ctx, second)
	assert.ErrorIs(t, err, ErrNotEligible)
	assert.Equal(t, models.TaskCompleted, task.Status)

	_, err = f.proc.ProcessTask(ctx, 9999)
	assert.ErrorIs(t, err, database.ErrTaskNotFound)
}

func TestRun_ClaimLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Put(testOrder(1016, nil))
	id := f.enqueue(t, 1016, models.ActionCreateInvoice)

	stale, err := f.db.GetTask(ctx, id)
	require.NoError(t, err)

	claimed, err := f.db.ClaimAttempt(ctx, id, 0)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = f.proc.run(ctx, f.settings, stale)
	assert.ErrorIs(t, err, ErrClaimLost)
	f.client.AssertNotCalled(t, "SyncContact", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	fresh, err := f.db.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Attempts)
}

func TestStart_WakeProcessesQueue(t *testing.T) {
	f := newFixture(t, func(s *config.SyncSettings) { s.AutoSyncContacts = false })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.store.Put(testOrder(1017, nil))
	id := f.enqueue(t, 1017, models.ActionCreateInvoice)
	f.client.On("CreateInvoice", mock.Anything, mock.Anything, orderID(1017), "").
		Return(&lexware.VoucherResult{ID: "inv-17"}, nil).Once()

	done := make(chan struct{})
	go func() {
		f.proc.Start(ctx)
		close(done)
	}()
	f.proc.Wake()

	assert.Eventually(t, func() bool {
		task, err := f.db.GetTask(context.Background(), id)
		return err == nil && task.Status == models.TaskCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop")
	}
}

func TestWake_DoesNotBlock(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.proc.Wake()
	}
	assert.Len(t, f.proc.wake, 1)
}
