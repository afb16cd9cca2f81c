package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

const (
	// Ключи метаданных для связи объектов Stripe с локальными записями
	MetadataUserIDKey  = "user_id"
	MetadataOfferIDKey = "offer_id"
	MetadataSourceKey  = "source"

	// MetadataPaymentMethodKey в сессии Checkout запускает оформление подписки после оплаты
	MetadataPaymentMethodKey = "payment_method_id"

	metadataSourceValue = "fitness-billing-service"
)

// Gateway определяет методы для взаимодействия со Stripe API.
type Gateway interface {
	CreateCustomer(ctx context.Context, in CustomerInput) (string, error)
	UpdateCustomerDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	// AttachPaymentMethod не считает ошибкой уже привязанный метод оплаты.
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error

	CreateProduct(ctx context.Context, in ProductInput) (string, error)
	UpdateProduct(ctx context.Context, productID string, in ProductInput) error
	DeleteProduct(ctx context.Context, productID string) error
	CreateRecurringPrice(ctx context.Context, in PriceInput) (string, error)
	CreateOneTimePrice(ctx context.Context, in PriceInput) (string, error)
	DeactivatePrice(ctx context.Context, priceID string) error

	CreateSubscription(ctx context.Context, in SubscriptionInput) (*Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	HasActiveSubscriptionForPrice(ctx context.Context, customerID, priceID string) (bool, error)
	CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) error
	// CancelSubscriptionNow отменяет без проратации и финального счёта. Отсутствующая подписка не ошибка.
	CancelSubscriptionNow(ctx context.Context, subscriptionID string) error

	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error)
	GetSetupIntentPaymentMethod(ctx context.Context, setupIntentID string) (string, error)

	RefundPaymentIntent(ctx context.Context, paymentIntentID string) (string, error)
	// CapturePaymentIntent списывает авторизованную сумму и возвращает новый статус платежа.
	CapturePaymentIntent(ctx context.Context, paymentIntentID string) (stripe.PaymentIntentStatus, error)
	SendInvoice(ctx context.Context, invoiceID string) error

	CreateConnectedAccount(ctx context.Context, trainerID, email string) (string, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)

	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

// CallObserver получает длительность и результат каждого вызова Stripe.
type CallObserver interface {
	ObserveStripeCall(operation string, duration time.Duration, err error)
}

// stripeClient реализует интерфейс Gateway.
type stripeClient struct {
	client        *client.API
	webhookSecret string
	ignoreVersion bool
	timeout       time.Duration
	maxRetries    int
	maxElapsed    time.Duration
	observer      CallObserver
	log           *logger.Logger
}

// NewStripeClient создает новый экземпляр клиента Stripe. observer может быть nil.
func NewStripeClient(cfg config.StripeConfig, observer CallObserver, log *logger.Logger) Gateway {
	sc := &client.API{}
	var backends *stripe.Backends
	if cfg.BackendURL != "" {
		backendCfg := &stripe.BackendConfig{
			URL:               stripe.String(cfg.BackendURL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		}
		backends = &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
		}
	}
	sc.Init(cfg.APIKey, backends)

	return &stripeClient{
		client:        sc,
		webhookSecret: cfg.WebhookSecret,
		ignoreVersion: cfg.IgnoreAPIVersionMismatch,
		timeout:       cfg.Timeout,
		maxRetries:    cfg.MaxRetries,
		maxElapsed:    cfg.MaxElapsedTime,
		observer:      observer,
		log:           log,
	}
}

// call выполняет запрос с таймаутом и повторяет временные ошибки с экспоненциальной задержкой.
func (sc *stripeClient) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	if sc.maxElapsed > 0 {
		bo.MaxElapsedTime = sc.maxElapsed
	}
	var policy backoff.BackOff = bo
	if sc.maxRetries >= 0 {
		policy = backoff.WithMaxRetries(bo, uint64(sc.maxRetries))
	}

	attempt := func() error {
		callCtx := ctx
		if sc.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, sc.timeout)
			defer cancel()
		}
		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if isRetryable(err) && ctx.Err() == nil {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		sc.log.Warnw("Retryable Stripe error occurred, retrying",
			"operation", operation, "error", err, "retry_in", wait)
	}

	err := backoff.RetryNotify(attempt, backoff.WithContext(policy, ctx), notify)
	if sc.observer != nil {
		sc.observer.ObserveStripeCall(operation, time.Since(start), err)
	}
	if err != nil {
		logStripeError(sc.log, operation, err)
		return classify(operation, err)
	}
	return nil
}

// CreateCustomer создает нового клиента в Stripe.
func (sc *stripeClient) CreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	var cus *stripe.Customer
	err := sc.call(ctx, "CreateCustomer", func(ctx context.Context) error {
		params := &stripe.CustomerParams{
			Email: stripe.String(in.Email),
			Metadata: map[string]string{
				MetadataUserIDKey: in.UserID,
				MetadataSourceKey: metadataSourceValue,
			},
		}
		if in.Name != "" {
			params.Name = stripe.String(in.Name)
		}
		params.Context = ctx
		params.SetIdempotencyKey("customer-" + in.UserID)

		var err error
		cus, err = sc.client.Customers.New(params)
		return err
	})
	if err != nil {
		return "", err
	}
	sc.log.Infow("Stripe customer created", "stripeCustomerID", cus.ID, "userID", in.UserID)
	return cus.ID, nil
}

// UpdateCustomerDefaultPaymentMethod делает метод оплаты методом по умолчанию для счетов.
func (sc *stripeClient) UpdateCustomerDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return sc.call(ctx, "UpdateCustomer", func(ctx context.Context) error {
		params := &stripe.CustomerParams{
			InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
				DefaultPaymentMethod: stripe.String(paymentMethodID),
			},
		}
		params.Context = ctx
		_, err := sc.client.Customers.Update(customerID, params)
		return err
	})
}

// AttachPaymentMethod привязывает метод оплаты к клиенту.
func (sc *stripeClient) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	err := sc.call(ctx, "AttachPaymentMethod", func(ctx context.Context) error {
		params := &stripe.PaymentMethodAttachParams{
			Customer: stripe.String(customerID),
		}
		params.Context = ctx
		_, err := sc.client.PaymentMethods.Attach(paymentMethodID, params)
		if isAlreadyAttached(err) {
			sc.log.Debugw("Payment method already attached", "paymentMethodID", paymentMethodID, "stripeCustomerID", customerID)
			return nil
		}
		return err
	})
	return err
}

// CreateProduct создает продукт Stripe для предложения.
func (sc *stripeClient) CreateProduct(ctx context.Context, in ProductInput) (string, error) {
	var product *stripe.Product
	err := sc.call(ctx, "CreateProduct", func(ctx context.Context) error {
		params := &stripe.ProductParams{
			Name:     stripe.String(in.Name),
			Metadata: in.Metadata,
		}
		if in.Description != "" {
			params.Description = stripe.String(in.Description)
		}
		params.Context = ctx

		var err error
		product, err = sc.client.Products.New(params)
		return err
	})
	if err != nil {
		return "", err
	}
	return product.ID, nil
}

// UpdateProduct обновляет название и описание продукта.
func (sc *stripeClient) UpdateProduct(ctx context.Context, productID string, in ProductInput) error {
	return sc.call(ctx, "UpdateProduct", func(ctx context.Context) error {
		params := &stripe.ProductParams{}
		if in.Name != "" {
			params.Name = stripe.String(in.Name)
		}
		if in.Description != "" {
			params.Description = stripe.String(in.Description)
		}
		params.Context = ctx
		_, err := sc.client.Products.Update(productID, params)
		return err
	})
}

// DeleteProduct удаляет продукт (компенсация при неудачном создании цены).
func (sc *stripeClient) DeleteProduct(ctx context.Context, productID string) error {
	return sc.call(ctx, "DeleteProduct", func(ctx context.Context) error {
		params := &stripe.ProductParams{}
		params.Context = ctx
		_, err := sc.client.Products.Del(productID, params)
		if isResourceMissing(err) {
			return nil
		}
		return err
	})
}

// CreateRecurringPrice создает регулярную цену для продукта.
func (sc *stripeClient) CreateRecurringPrice(ctx context.Context, in PriceInput) (string, error) {
	interval := in.Interval
	if interval == "" {
		interval = string(stripe.PriceRecurringIntervalMonth)
	}
	count := in.IntervalCount
	if count <= 0 {
		count = 1
	}
	return sc.createPrice(ctx, "CreateRecurringPrice", in, &stripe.PriceRecurringParams{
		Interval:      stripe.String(interval),
		IntervalCount: stripe.Int64(count),
	})
}

// CreateOneTimePrice создает разовую цену для продукта.
func (sc *stripeClient) CreateOneTimePrice(ctx context.Context, in PriceInput) (string, error) {
	return sc.createPrice(ctx, "CreateOneTimePrice", in, nil)
}

func (sc *stripeClient) createPrice(ctx context.Context, operation string, in PriceInput, recurring *stripe.PriceRecurringParams) (string, error) {
	var price *stripe.Price
	err := sc.call(ctx, operation, func(ctx context.Context) error {
		params := &stripe.PriceParams{
			Product:    stripe.String(in.ProductID),
			UnitAmount: stripe.Int64(in.UnitAmount),
			Currency:   stripe.String(strings.ToLower(in.Currency)),
			Recurring:  recurring,
		}
		params.Context = ctx

		var err error
		price, err = sc.client.Prices.New(params)
		return err
	})
	if err != nil {
		return "", err
	}
	return price.ID, nil
}

// DeactivatePrice архивирует старую цену.
func (sc *stripeClient) DeactivatePrice(ctx context.Context, priceID string) error {
	return sc.call(ctx, "DeactivatePrice", func(ctx context.Context) error {
		params := &stripe.PriceParams{Active: stripe.Bool(false)}
		params.Context = ctx
		_, err := sc.client.Prices.Update(priceID, params)
		return err
	})
}

// CreateSubscription создает подписку в Stripe для указанного клиента и цены.
func (sc *stripeClient) CreateSubscription(ctx context.Context, in SubscriptionInput) (*Subscription, error) {
	var sub *stripe.Subscription
	err := sc.call(ctx, "CreateSubscription", func(ctx context.Context) error {
		params := &stripe.SubscriptionParams{
			Customer: stripe.String(in.CustomerID),
			Items: []*stripe.SubscriptionItemsParams{
				{
					Price: stripe.String(in.PriceID),
				},
			},
			Metadata: in.Metadata,
			Params: stripe.Params{
				IdempotencyKey: stripe.String(in.IdempotencyKey),
				Context:        ctx,
			},
		}
		if in.PaymentMethodID != "" {
			params.DefaultPaymentMethod = stripe.String(in.PaymentMethodID)
		}
		if in.Coupon != "" {
			params.Coupon = stripe.String(in.Coupon)
		}
		// Используем AddExpand для получения PaymentIntent
		params.AddExpand("latest_invoice.payment_intent")

		var err error
		sub, err = sc.client.Subscriptions.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := fromStripeSubscription(sub)
	sc.log.Infow("Stripe subscription created",
		"stripeSubscriptionID", result.ID,
		"status", result.Status,
		"paymentIntentStatus", result.PaymentIntentStatus,
	)
	return result, nil
}

// GetSubscription получает подписку с последним счётом.
func (sc *stripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub *stripe.Subscription
	err := sc.call(ctx, "GetSubscription", func(ctx context.Context) error {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx
		params.AddExpand("latest_invoice.payment_intent")

		var err error
		sub, err = sc.client.Subscriptions.Get(subscriptionID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromStripeSubscription(sub), nil
}

// HasActiveSubscriptionForPrice проверяет, есть ли у клиента активная подписка на цену.
func (sc *stripeClient) HasActiveSubscriptionForPrice(ctx context.Context, customerID, priceID string) (bool, error) {
	found := false
	err := sc.call(ctx, "ListSubscriptions", func(ctx context.Context) error {
		params := &stripe.SubscriptionListParams{
			Customer: stripe.String(customerID),
			Price:    stripe.String(priceID),
			Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
		}
		params.Context = ctx
		params.Limit = stripe.Int64(1)

		iter := sc.client.Subscriptions.List(params)
		found = iter.Next()
		return iter.Err()
	})
	return found, err
}

// CancelSubscriptionAtPeriodEnd помечает подписку к отмене в конце периода.
func (sc *stripeClient) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	err := sc.call(ctx, "CancelSubscriptionAtPeriodEnd", func(ctx context.Context) error {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		params.Context = ctx
		_, err := sc.client.Subscriptions.Update(subscriptionID, params)
		return err
	})
	if err == nil {
		sc.log.Infow("Stripe subscription set to cancel at period end", "stripeSubscriptionID", subscriptionID)
	}
	return err
}

// CancelSubscriptionNow отменяет подписку в Stripe немедленно.
func (sc *stripeClient) CancelSubscriptionNow(ctx context.Context, subscriptionID string) error {
	err := sc.call(ctx, "CancelSubscription", func(ctx context.Context) error {
		params := &stripe.SubscriptionCancelParams{
			InvoiceNow: stripe.Bool(false),
			Prorate:    stripe.Bool(false),
		}
		params.Context = ctx
		_, err := sc.client.Subscriptions.Cancel(subscriptionID, params)
		// Обрабатываем случай, если подписка уже удалена
		if isResourceMissing(err) {
			sc.log.Warnw("Attempted to cancel already canceled/missing Stripe subscription", "stripeSubscriptionID", subscriptionID)
			return nil
		}
		return err
	})
	if err == nil {
		sc.log.Infow("Stripe subscription canceled", "stripeSubscriptionID", subscriptionID)
	}
	return err
}

// CreateCheckoutSession создает сессию Stripe Checkout в режиме payment или setup.
func (sc *stripeClient) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error) {
	var session *stripe.CheckoutSession
	err := sc.call(ctx, "CreateCheckoutSession", func(ctx context.Context) error {
		params := &stripe.CheckoutSessionParams{
			Mode:               stripe.String(string(in.Mode)),
			PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
			SuccessURL:         stripe.String(in.SuccessURL),
			CancelURL:          stripe.String(in.CancelURL),
			Metadata:           in.Metadata,
		}
		if in.CustomerID != "" {
			params.Customer = stripe.String(in.CustomerID)
		}
		switch in.Mode {
		case CheckoutModeSetup:
			params.Currency = stripe.String(strings.ToLower(in.Currency))
			params.SetupIntentData = &stripe.CheckoutSessionSetupIntentDataParams{Metadata: in.Metadata}
		case CheckoutModePayment:
			params.LineItems = []*stripe.CheckoutSessionLineItemParams{
				{
					Price:    stripe.String(in.PriceID),
					Quantity: stripe.Int64(1),
				},
			}
			params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: in.Metadata}
			if in.ManualCapture {
				params.PaymentIntentData.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
			}
		}
		params.Context = ctx

		var err error
		session, err = sc.client.CheckoutSessions.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// GetSetupIntentPaymentMethod возвращает id метода оплаты, собранного setup-сессией.
func (sc *stripeClient) GetSetupIntentPaymentMethod(ctx context.Context, setupIntentID string) (string, error) {
	var si *stripe.SetupIntent
	err := sc.call(ctx, "GetSetupIntent", func(ctx context.Context) error {
		params := &stripe.SetupIntentParams{}
		params.Context = ctx

		var err error
		si, err = sc.client.SetupIntents.Get(setupIntentID, params)
		return err
	})
	if err != nil {
		return "", err
	}
	if si.PaymentMethod == nil {
		return "", fmt.Errorf("stripe: setup intent %s has no payment method", setupIntentID)
	}
	return si.PaymentMethod.ID, nil
}

func (sc *stripeClient) CapturePaymentIntent(ctx context.Context, paymentIntentID string) (stripe.PaymentIntentStatus, error) {
	var intent *stripe.PaymentIntent
	err := sc.call(ctx, "CapturePaymentIntent", func(ctx context.Context) error {
		params := &stripe.PaymentIntentCaptureParams{}
		params.Context = ctx
		params.SetIdempotencyKey("capture-" + paymentIntentID)

		var err error
		intent, err = sc.client.PaymentIntents.Capture(paymentIntentID, params)
		return err
	})
	if err != nil {
		return "", err
	}
	return intent.Status, nil
}

// RefundPaymentIntent возвращает полную сумму платежа.
func (sc *stripeClient) RefundPaymentIntent(ctx context.Context, paymentIntentID string) (string, error) {
	var refund *stripe.Refund
	err := sc.call(ctx, "CreateRefund", func(ctx context.Context) error {
		params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntentID)}
		params.Context = ctx
		params.SetIdempotencyKey("refund-" + paymentIntentID)

		var err error
		refund, err = sc.client.Refunds.New(params)
		return err
	})
	if err != nil {
		return "", err
	}
	sc.log.Infow("Stripe refund created", "refundID", refund.ID, "paymentIntentID", paymentIntentID)
	return refund.ID, nil
}

// SendInvoice отправляет клиенту счёт от имени Stripe.
func (sc *stripeClient) SendInvoice(ctx context.Context, invoiceID string) error {
	return sc.call(ctx, "SendInvoice", func(ctx context.Context) error {
		params := &stripe.InvoiceSendInvoiceParams{}
		params.Context = ctx
		_, err := sc.client.Invoices.SendInvoice(invoiceID, params)
		return err
	})
}

// CreateConnectedAccount создает Express-аккаунт тренера.
func (sc *stripeClient) CreateConnectedAccount(ctx context.Context, trainerID, email string) (string, error) {
	var acct *stripe.Account
	err := sc.call(ctx, "CreateAccount", func(ctx context.Context) error {
		params := &stripe.AccountParams{
			Type:  stripe.String(string(stripe.AccountTypeExpress)),
			Email: stripe.String(email),
			Metadata: map[string]string{
				MetadataUserIDKey: trainerID,
			},
		}
		params.Context = ctx
		params.SetIdempotencyKey("account-" + trainerID)

		var err error
		acct, err = sc.client.Accounts.New(params)
		return err
	})
	if err != nil {
		return "", err
	}
	return acct.ID, nil
}

// CreateAccountLink создает ссылку онбординга для аккаунта тренера.
func (sc *stripeClient) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	var link *stripe.AccountLink
	err := sc.call(ctx, "CreateAccountLink", func(ctx context.Context) error {
		params := &stripe.AccountLinkParams{
			Account:    stripe.String(accountID),
			RefreshURL: stripe.String(refreshURL),
			ReturnURL:  stripe.String(returnURL),
			Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
		}
		params.Context = ctx

		var err error
		link, err = sc.client.AccountLinks.New(params)
		return err
	})
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

// ConstructEvent проверяет подпись вебхука и разбирает событие.
func (sc *stripeClient) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, sc.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: sc.ignoreVersion,
	})
}
