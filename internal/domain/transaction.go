package domain

import (
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// Transaction wallet movement as listed by the backend.
type Transaction struct {
	TransactionID       int64           `json:"transactionId"`
	UserID              string          `json:"userId"`
	Amount              decimal.Decimal `json:"amount"`
	TransactionDateTime string          `json:"transactionDateTime"`
	PaymentType         string          `json:"paymentType"`
	TenantID            string          `json:"tenantId"`
	Remarks             string          `json:"remarks"`
	Info                string          `json:"info"`
	Currency            string          `json:"currency"`
	PointsEarned        decimal.Decimal `json:"pointsEarned"`
	IsRedeemed          bool            `json:"isRedeemed"`
	BankID              int64           `json:"bankId"`
	WalletID            int64           `json:"walletId"`
	IsActive            bool            `json:"isActive"`
}

// TransactionPage one page of transactions plus the total count.
type TransactionPage struct {
	Items       []Transaction
	TotalRecord int
}

// TransactionFilter query parameters of the transaction listing.
type TransactionFilter struct {
	WalletID            int64
	TransactionStatus   string
	DateFrom            string
	DateTo              string
	SearchValue         string
	SortColumn          string
	SortColumnDirection string
	PageSize            int
	Skip                int
	UserID              string
}

// Query encodes the filter, leaving out unset fields.
func (f TransactionFilter) Query() url.Values {
	q := url.Values{}
	q.Set("walletId", strconv.FormatInt(f.WalletID, 10))
	set := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	set("transactionStatus", f.TransactionStatus)
	set("dateFrom", f.DateFrom)
	set("dateTo", f.DateTo)
	set("searchValue", f.SearchValue)
	set("sortColumn", f.SortColumn)
	set("sortColumnDirection", f.SortColumnDirection)
	set("userId", f.UserID)
	if f.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(f.PageSize))
	}
	if f.Skip > 0 {
		q.Set("skip", strconv.Itoa(f.Skip))
	}
	return q
}
