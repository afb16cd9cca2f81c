package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/repository"
	"github.com/Dhoini/fitness-billing-service/internal/stripe"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	stripego "github.com/stripe/stripe-go/v78"
)

// memStore - общее in-memory состояние для фейковых репозиториев.
type memStore struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]*domain.Subscriber
	trainers    map[uuid.UUID]*domain.TrainerProfile
	offers      map[uuid.UUID]*domain.SubscriptionOffer
	subs        map[uuid.UUID]*domain.UserSubscription
	payments    []*domain.Payment
	rules       map[uuid.UUID]*domain.PricingRule
	usages      []domain.PricingRuleUsage
	events      map[string]domain.WebhookEventStatus
}

func newMemStore() *memStore {
	return &memStore{
		subscribers: make(map[uuid.UUID]*domain.Subscriber),
		trainers:    make(map[uuid.UUID]*domain.TrainerProfile),
		offers:      make(map[uuid.UUID]*domain.SubscriptionOffer),
		subs:        make(map[uuid.UUID]*domain.UserSubscription),
		rules:       make(map[uuid.UUID]*domain.PricingRule),
		events:      make(map[string]domain.WebhookEventStatus),
	}
}

func (s *memStore) repos() Repositories {
	return Repositories{
		Subscribers:   &memSubscribers{s},
		Trainers:      &memTrainers{s},
		Offers:        &memOffers{s},
		Subscriptions: &memSubscriptions{s},
		Payments:      &memPayments{s},
		Rules:         &memRules{s},
		Webhooks:      &memWebhooks{s},
		Tx:            memTx{},
	}
}

func (s *memStore) subscriber(id uuid.UUID) domain.Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.subscribers[id]
}

func (s *memStore) subscription(id uuid.UUID) domain.UserSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.subs[id]
}

func (s *memStore) allSubscriptions() []domain.UserSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, *sub)
	}
	return out
}

func (s *memStore) allPayments() []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Payment, len(s.payments))
	for i, p := range s.payments {
		out[i] = *p
	}
	return out
}

func (s *memStore) rule(id uuid.UUID) domain.PricingRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rules[id]
}

type memTx struct{}

func (memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memSubscribers struct{ *memStore }

func (r *memSubscribers) GetByID(_ context.Context, id uuid.UUID) (*domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscribers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSubscribers) GetByStripeCustomerID(_ context.Context, customerID string) (*domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subscribers {
		if s.CustomerID() == customerID && customerID != "" {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memSubscribers) LockForUpdate(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[id]; !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (r *memSubscribers) SetStripeCustomerID(_ context.Context, id uuid.UUID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscribers[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.StripeCustomerID = &customerID
	return nil
}

func (r *memSubscribers) UpdateSubscriptionFlags(_ context.Context, id uuid.UUID, flags domain.SubscriptionFlags) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscribers[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.IsSubscribed = flags.IsSubscribed
	s.SubscriptionEnd = flags.SubscriptionEnd
	s.SubscriptionPlan = flags.SubscriptionPlan
	s.StripeSubscriptionID = flags.StripeSubscriptionID
	return nil
}

func (r *memSubscribers) ExtendByStripeSubscription(_ context.Context, stripeSubscriptionID string, end time.Time, markSubscribed bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	paid := make(map[uuid.UUID]bool)
	for _, sub := range r.subs {
		if sub.ExternalID() == stripeSubscriptionID && sub.PaymentStatus == domain.PaymentStatusCompleted {
			paid[sub.UserID] = true
		}
	}
	var n int64
	for _, s := range r.subscribers {
		if !paid[s.ID] {
			continue
		}
		e := end
		s.SubscriptionEnd = &e
		if markSubscribed {
			s.IsSubscribed = true
		}
		n++
	}
	return n, nil
}

type memTrainers struct{ *memStore }

func (r *memTrainers) GetByUserID(_ context.Context, userID uuid.UUID) (*domain.TrainerProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trainers[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memTrainers) GetByStripeAccountID(_ context.Context, accountID string) (*domain.TrainerProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.trainers {
		if domain.StrVal(t.StripeAccountID) == accountID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memTrainers) SetStripeAccount(_ context.Context, userID uuid.UUID, accountID, onboardingURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trainers[userID]
	if !ok {
		t = &domain.TrainerProfile{UserID: userID}
		r.trainers[userID] = t
	}
	t.StripeAccountID = &accountID
	t.OnboardingURL = &onboardingURL
	return nil
}

func (r *memTrainers) CompleteOnboarding(_ context.Context, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trainers[userID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if t.OnboardingCompleted {
		return false, nil
	}
	t.OnboardingCompleted = true
	t.OnboardingURL = nil
	return true, nil
}

type memOffers struct{ *memStore }

func (r *memOffers) Create(_ context.Context, offer *domain.SubscriptionOffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *offer
	r.offers[offer.ID] = &cp
	return nil
}

func (r *memOffers) GetByID(_ context.Context, id uuid.UUID) (*domain.SubscriptionOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.offers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memOffers) GetByStripePriceID(_ context.Context, priceID string) (*domain.SubscriptionOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.offers {
		if o.PriceID() == priceID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memOffers) Update(_ context.Context, offer *domain.SubscriptionOffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.offers[offer.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *offer
	r.offers[offer.ID] = &cp
	return nil
}

func (r *memOffers) List(_ context.Context, filter domain.OfferFilter) ([]domain.SubscriptionOffer, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []domain.SubscriptionOffer
	for _, o := range r.offers {
		if filter.IsActive != nil && o.IsActive != *filter.IsActive {
			continue
		}
		all = append(all, *o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	from := filter.Offset()
	if from > total {
		from = total
	}
	to := from + filter.Limit
	if to > total {
		to = total
	}
	return all[from:to], total, nil
}

type memSubscriptions struct{ *memStore }

func (r *memSubscriptions) Create(_ context.Context, sub *domain.UserSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.ID]; ok {
		return repository.ErrDuplicate
	}
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *memSubscriptions) GetByID(_ context.Context, id uuid.UUID) (*domain.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSubscriptions) GetByStripeSubscriptionID(_ context.Context, stripeSubscriptionID string) (*domain.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.ExternalID() == stripeSubscriptionID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memSubscriptions) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.UserSubscription
	for _, s := range r.subs {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memSubscriptions) FindActiveByUser(_ context.Context, userID uuid.UUID, now time.Time) (*domain.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.UserID == userID && s.IsActiveAt(now) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memSubscriptions) CountActiveByUser(_ context.Context, userID uuid.UUID, excludeID uuid.UUID, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.subs {
		if s.UserID == userID && s.ID != excludeID && s.IsActiveAt(now) {
			n++
		}
	}
	return n, nil
}

func (r *memSubscriptions) Update(_ context.Context, sub *domain.UserSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *memSubscriptions) UpdateByStripeID(_ context.Context, stripeSubscriptionID string, upd repository.SubscriptionUpdate) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.subs {
		if s.ExternalID() != stripeSubscriptionID {
			continue
		}
		if upd.OnlyStatus != nil && s.PaymentStatus != *upd.OnlyStatus {
			continue
		}
		if upd.UserID != nil && s.UserID != *upd.UserID {
			continue
		}
		if upd.Status != nil {
			s.PaymentStatus = *upd.Status
		}
		if upd.EndDate != nil {
			s.EndDate = *upd.EndDate
		}
		n++
	}
	return n, nil
}

type memPayments struct{ *memStore }

func (r *memPayments) Create(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.payments {
		if p.PaymentIntentID != nil && domain.StrVal(existing.PaymentIntentID) == *p.PaymentIntentID {
			return repository.ErrDuplicate
		}
		if p.InvoiceID != nil && domain.StrVal(existing.InvoiceID) == *p.InvoiceID {
			return repository.ErrDuplicate
		}
	}
	cp := *p
	r.payments = append(r.payments, &cp)
	return nil
}

func (r *memPayments) Update(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.payments {
		if existing.ID == p.ID {
			cp := *p
			r.payments[i] = &cp
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memPayments) find(match func(p *domain.Payment) bool) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memPayments) GetByPaymentIntentID(_ context.Context, paymentIntentID string) (*domain.Payment, error) {
	return r.find(func(p *domain.Payment) bool { return domain.StrVal(p.PaymentIntentID) == paymentIntentID })
}

func (r *memPayments) GetByInvoiceID(_ context.Context, invoiceID string) (*domain.Payment, error) {
	return r.find(func(p *domain.Payment) bool { return domain.StrVal(p.InvoiceID) == invoiceID })
}

func (r *memPayments) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memPayments) FindLastBySubscription(_ context.Context, stripeSubscriptionID string, status *domain.PaymentStatus) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *domain.Payment
	for _, p := range r.payments {
		if domain.StrVal(p.StripeSubscriptionID) != stripeSubscriptionID {
			continue
		}
		if status != nil && p.Status != *status {
			continue
		}
		if last == nil || !p.CreatedAt.Before(last.CreatedAt) {
			last = p
		}
	}
	if last == nil {
		return nil, repository.ErrNotFound
	}
	cp := *last
	return &cp, nil
}

func (r *memPayments) UpdateStatusByIntent(_ context.Context, paymentIntentID string, status domain.PaymentStatus, receiptURL *string, paidAt *time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.payments {
		if domain.StrVal(p.PaymentIntentID) != paymentIntentID {
			continue
		}
		p.Status = status
		if receiptURL != nil {
			p.ReceiptURL = receiptURL
		}
		if paidAt != nil {
			p.PaidAt = paidAt
		}
		n++
	}
	return n, nil
}

func (r *memPayments) UpdateStatusBySubscription(_ context.Context, stripeSubscriptionID string, from, to domain.PaymentStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.payments {
		if domain.StrVal(p.StripeSubscriptionID) == stripeSubscriptionID && p.Status == from {
			p.Status = to
			n++
		}
	}
	return n, nil
}

func (r *memPayments) BackfillInitial(_ context.Context, stripeSubscriptionID, invoiceID, paymentIntentID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.payments {
		if domain.StrVal(p.StripeSubscriptionID) != stripeSubscriptionID {
			continue
		}
		if p.InvoiceID == nil && invoiceID != "" {
			p.InvoiceID = &invoiceID
			n++
		}
		if p.PaymentIntentID == nil && paymentIntentID != "" {
			p.PaymentIntentID = &paymentIntentID
		}
	}
	return n, nil
}

type memRules struct{ *memStore }

func (r *memRules) Create(_ context.Context, rule *domain.PricingRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rule
	r.rules[rule.ID] = &cp
	return nil
}

func (r *memRules) GetByID(_ context.Context, id uuid.UUID) (*domain.PricingRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rule
	return &cp, nil
}

func (r *memRules) List(_ context.Context) ([]domain.PricingRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PricingRule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, *rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memRules) ListByOffer(_ context.Context, offerID uuid.UUID, activeOnly bool) ([]domain.PricingRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PricingRule
	for _, rule := range r.rules {
		if rule.OfferID != offerID || (activeOnly && !rule.IsActive) {
			continue
		}
		out = append(out, *rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memRules) Update(_ context.Context, id uuid.UUID, in domain.UpdateRuleInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return repository.ErrNotFound
	}
	trainers := rule.TrainerIDs
	next := in.ApplyTo(*rule)
	next.TrainerIDs = trainers
	r.rules[id] = &next
	return nil
}

func (r *memRules) ReplaceTrainers(_ context.Context, ruleID uuid.UUID, trainerIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[ruleID]
	if !ok {
		return repository.ErrNotFound
	}
	rule.TrainerIDs = trainerIDs
	return nil
}

func (r *memRules) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.rules, id)
	return nil
}

func (r *memRules) CountUsages(_ context.Context, ruleID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.usages {
		if u.RuleID == ruleID {
			n++
		}
	}
	return n, nil
}

func (r *memRules) HasUsage(_ context.Context, ruleID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.usages {
		if u.RuleID == ruleID && u.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRules) UsedRuleIDs(_ context.Context, userID uuid.UUID, ruleIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(ruleIDs))
	for _, id := range ruleIDs {
		wanted[id] = true
	}
	used := make(map[uuid.UUID]bool)
	for _, u := range r.usages {
		if u.UserID == userID && wanted[u.RuleID] {
			used[u.RuleID] = true
		}
	}
	return used, nil
}

func (r *memRules) InsertUsage(_ context.Context, usage *domain.PricingRuleUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.usages {
		if u.RuleID == usage.RuleID && u.UserID == usage.UserID {
			return repository.ErrDuplicate
		}
	}
	r.usages = append(r.usages, *usage)
	return nil
}

func (r *memRules) IncrementUsage(_ context.Context, ruleID uuid.UUID, capped bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[ruleID]
	if !ok {
		return false, nil
	}
	if capped && rule.MaxSubscribers != nil && rule.UsageCount >= *rule.MaxSubscribers {
		return false, nil
	}
	rule.UsageCount++
	return true, nil
}

type memWebhooks struct{ *memStore }

func (r *memWebhooks) Begin(_ context.Context, eventID, _ string) (domain.WebhookEventStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.events[eventID]
	if !ok {
		r.events[eventID] = domain.WebhookEventStatusPending
		return domain.WebhookEventStatusPending, nil
	}
	return status, nil
}

func (r *memWebhooks) MarkProcessed(_ context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[eventID] = domain.WebhookEventStatusProcessed
	return nil
}

func (r *memWebhooks) MarkFailed(_ context.Context, eventID string, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[eventID] = domain.WebhookEventStatusFailed
	return nil
}

func (r *memWebhooks) status(eventID string) domain.WebhookEventStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[eventID]
}

type memDedup struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newMemDedup() *memDedup {
	return &memDedup{claimed: make(map[string]bool)}
}

func (d *memDedup) Claim(_ context.Context, eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.claimed[eventID] {
		return false
	}
	d.claimed[eventID] = true
	return true
}

func (d *memDedup) Release(_ context.Context, eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claimed, eventID)
}

type recordingPublisher struct {
	mu            sync.Mutex
	subscriptions []domain.SubscriptionEvent
	payments      []domain.PaymentEvent
}

func (p *recordingPublisher) PublishSubscriptionEvent(_ context.Context, event domain.SubscriptionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions = append(p.subscriptions, event)
	return nil
}

func (p *recordingPublisher) PublishPaymentEvent(_ context.Context, event domain.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, event)
	return nil
}

func (p *recordingPublisher) subscriptionTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.subscriptions))
	for i, e := range p.subscriptions {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) paymentTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.payments))
	for i, e := range p.payments {
		out[i] = e.Type
	}
	return out
}

type sentMail struct {
	Subject string
	To      string
	Body    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *recordingNotifier) Send(_ context.Context, subject, to, htmlBody string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{Subject: subject, To: to, Body: htmlBody})
	return nil
}

func (n *recordingNotifier) messages() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMail(nil), n.sent...)
}

// MockGateway - мок платежного шлюза.
type MockGateway struct{ mock.Mock }

func (m *MockGateway) CreateCustomer(ctx context.Context, in stripe.CustomerInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) UpdateCustomerDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return m.Called(ctx, customerID, paymentMethodID).Error(0)
}

func (m *MockGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	return m.Called(ctx, paymentMethodID, customerID).Error(0)
}

func (m *MockGateway) CreateProduct(ctx context.Context, in stripe.ProductInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) UpdateProduct(ctx context.Context, productID string, in stripe.ProductInput) error {
	return m.Called(ctx, productID, in).Error(0)
}

func (m *MockGateway) DeleteProduct(ctx context.Context, productID string) error {
	return m.Called(ctx, productID).Error(0)
}

func (m *MockGateway) CreateRecurringPrice(ctx context.Context, in stripe.PriceInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) CreateOneTimePrice(ctx context.Context, in stripe.PriceInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) DeactivatePrice(ctx context.Context, priceID string) error {
	return m.Called(ctx, priceID).Error(0)
}

func (m *MockGateway) CreateSubscription(ctx context.Context, in stripe.SubscriptionInput) (*stripe.Subscription, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Subscription), args.Error(1)
}

func (m *MockGateway) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Subscription), args.Error(1)
}

func (m *MockGateway) HasActiveSubscriptionForPrice(ctx context.Context, customerID, priceID string) (bool, error) {
	args := m.Called(ctx, customerID, priceID)
	return args.Bool(0), args.Error(1)
}

func (m *MockGateway) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func (m *MockGateway) CancelSubscriptionNow(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, in stripe.CheckoutInput) (*stripe.CheckoutSession, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.CheckoutSession), args.Error(1)
}

func (m *MockGateway) GetSetupIntentPaymentMethod(ctx context.Context, setupIntentID string) (string, error) {
	args := m.Called(ctx, setupIntentID)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) RefundPaymentIntent(ctx context.Context, paymentIntentID string) (string, error) {
	args := m.Called(ctx, paymentIntentID)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) CapturePaymentIntent(ctx context.Context, paymentIntentID string) (stripego.PaymentIntentStatus, error) {
	args := m.Called(ctx, paymentIntentID)
	return args.Get(0).(stripego.PaymentIntentStatus), args.Error(1)
}

func (m *MockGateway) SendInvoice(ctx context.Context, invoiceID string) error {
	return m.Called(ctx, invoiceID).Error(0)
}

func (m *MockGateway) CreateConnectedAccount(ctx context.Context, trainerID, email string) (string, error) {
	args := m.Called(ctx, trainerID, email)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	args := m.Called(ctx, accountID, refreshURL, returnURL)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) ConstructEvent(payload []byte, signature string) (stripego.Event, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(stripego.Event), args.Error(1)
}

// fixture - типовые данные: подписчик с клиентом Stripe и активное предложение тренера.
type fixture struct {
	store      *memStore
	subscriber *domain.Subscriber
	trainer    *domain.TrainerProfile
	offer      *domain.SubscriptionOffer
}

func newFixture() *fixture {
	store := newMemStore()
	now := time.Now()

	trainerID := uuid.New()
	trainer := &domain.TrainerProfile{UserID: trainerID, CreatedAt: now, UpdatedAt: now}
	store.trainers[trainerID] = trainer

	subscriber := &domain.Subscriber{
		ID:               uuid.New(),
		Email:            "member@example.com",
		FullName:         "Test Member",
		Role:             domain.RoleMember,
		StripeCustomerID: domain.StrPtr("cus_test"),
	}
	store.subscribers[subscriber.ID] = subscriber

	offer := &domain.SubscriptionOffer{
		ID:              uuid.New(),
		CreatorID:       trainerID,
		Title:           "Strength Plan",
		Description:     "Three sessions a week",
		Price:           100,
		Currency:        "usd",
		PlanType:        domain.PlanStandard,
		Duration:        domain.DurationMonthly,
		StripeProductID: domain.StrPtr("prod_test"),
		StripePriceID:   domain.StrPtr("price_test"),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	store.offers[offer.ID] = offer

	return &fixture{store: store, subscriber: subscriber, trainer: trainer, offer: offer}
}
