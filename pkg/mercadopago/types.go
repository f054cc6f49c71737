package mercadopago

import (
	"strconv"
	"time"

	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/shopspring/decimal"
)

const currencyBRL = "BRL"

// CheckoutItem is one line of a checkout preference.
type CheckoutItem struct {
	ID          string
	Title       string
	Description string
	Quantity    int
	CurrencyID  string
	UnitPrice   decimal.Decimal
}

// BackURLs are the storefront pages the buyer returns to.
type BackURLs struct {
	Success string
	Failure string
	Pending string
}

// PaymentMethods narrows which payment types the hosted checkout offers.
type PaymentMethods struct {
	ExcludedPaymentTypes []string
	Installments         int
}

// ExcludeTypes builds a PaymentMethods that hides the given payment type ids.
func ExcludeTypes(ids ...string) *PaymentMethods {
	return &PaymentMethods{ExcludedPaymentTypes: append([]string(nil), ids...)}
}

// CheckoutRequest describes the hosted checkout preference for one order.
type CheckoutRequest struct {
	Items               []CheckoutItem
	BackURLs            BackURLs
	AutoReturn          string
	ExternalReference   string
	NotificationURL     string
	StatementDescriptor string
	PaymentMethods      *PaymentMethods
	DateOfExpiration    *time.Time
}

// NewItem builds a single-quantity BRL item.
func NewItem(id int64, title string, price decimal.Decimal) CheckoutItem {
	return CheckoutItem{
		ID:          strconv.FormatInt(id, 10),
		Title:       title,
		Description: "Curso: " + title,
		Quantity:    1,
		CurrencyID:  currencyBRL,
		UnitPrice:   price,
	}
}

func (r CheckoutRequest) toPreferenceRequest() preference.Request {
	items := make([]preference.ItemRequest, 0, len(r.Items))
	for _, item := range r.Items {
		currency := item.CurrencyID
		if currency == "" {
			currency = currencyBRL
		}
		items = append(items, preference.ItemRequest{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Description,
			Quantity:    item.Quantity,
			CurrencyID:  currency,
			UnitPrice:   item.UnitPrice.Round(2).InexactFloat64(),
		})
	}

	req := preference.Request{
		Items:               items,
		AutoReturn:          r.AutoReturn,
		ExternalReference:   r.ExternalReference,
		NotificationURL:     r.NotificationURL,
		StatementDescriptor: r.StatementDescriptor,
		DateOfExpiration:    r.DateOfExpiration,
	}
	if r.BackURLs != (BackURLs{}) {
		req.BackURLs = &preference.BackURLsRequest{
			Success: r.BackURLs.Success,
			Failure: r.BackURLs.Failure,
			Pending: r.BackURLs.Pending,
		}
	}
	if r.PaymentMethods != nil {
		excluded := make([]preference.ExcludedPaymentTypeRequest, 0, len(r.PaymentMethods.ExcludedPaymentTypes))
		for _, id := range r.PaymentMethods.ExcludedPaymentTypes {
			excluded = append(excluded, preference.ExcludedPaymentTypeRequest{ID: id})
		}
		req.PaymentMethods = &preference.PaymentMethodsRequest{
			ExcludedPaymentTypes: excluded,
			Installments:         r.PaymentMethods.Installments,
		}
	}
	return req
}

// Checkout is the created preference.
type Checkout struct {
	PreferenceID string
	CheckoutURL  string
}

// Card carries the non-sensitive card details reported with a payment.
type Card struct {
	LastFourDigits string
}

// Payment is the subset of a gateway payment the reconciliation engine consumes.
type Payment struct {
	ID                int64
	Status            string
	StatusDetail      string
	ExternalReference string
	PaymentMethodID   string
	PaymentTypeID     string
	TransactionAmount decimal.Decimal
	Installments      int
	DateApproved      *time.Time
	Card              *Card
}

// IDString renders the payment id as stored on payment records.
func (p Payment) IDString() string {
	return strconv.FormatInt(p.ID, 10)
}

func paymentFromSDK(resp *payment.Response) *Payment {
	out := &Payment{
		ID:                int64(resp.ID),
		Status:            resp.Status,
		StatusDetail:      resp.StatusDetail,
		ExternalReference: resp.ExternalReference,
		PaymentMethodID:   resp.PaymentMethodID,
		PaymentTypeID:     resp.PaymentTypeID,
		TransactionAmount: decimal.NewFromFloat(resp.TransactionAmount).Round(2),
		Installments:      resp.Installments,
	}
	if !resp.DateApproved.IsZero() {
		d := resp.DateApproved
		out.DateApproved = &d
	}
	if resp.Card.LastFourDigits != "" {
		out.Card = &Card{LastFourDigits: resp.Card.LastFourDigits}
	}
	return out
}
