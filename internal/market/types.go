package market

// Period selects the reporting cadence for financial statements.
type Period string

const (
	PeriodAnnual  Period = "annual"
	PeriodQuarter Period = "quarter"
)

// OrDefault falls back to annual reporting for empty or unknown values.
func (p Period) OrDefault() Period {
	if p == PeriodQuarter {
		return PeriodQuarter
	}
	return PeriodAnnual
}

// MoverKind selects a market movers board.
type MoverKind string

const (
	MoversGainers MoverKind = "gainers"
	MoversLosers  MoverKind = "losers"
	MoversActives MoverKind = "actives"
)

// Quote is a real-time price snapshot for one symbol.
type Quote struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Price             float64 `json:"price"`
	Change            float64 `json:"change"`
	ChangesPercentage float64 `json:"changesPercentage"`
	DayLow            float64 `json:"dayLow"`
	DayHigh           float64 `json:"dayHigh"`
	YearLow           float64 `json:"yearLow"`
	YearHigh          float64 `json:"yearHigh"`
	MarketCap         float64 `json:"marketCap"`
	Volume            int64   `json:"volume"`
	AvgVolume         int64   `json:"avgVolume"`
	Open              float64 `json:"open"`
	PreviousClose     float64 `json:"previousClose"`
	EPS               float64 `json:"eps"`
	PE                float64 `json:"pe"`
	Exchange          string  `json:"exchange"`
}

// CompanyProfile describes the business behind a symbol.
type CompanyProfile struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	Currency    string  `json:"currency"`
	Exchange    string  `json:"exchangeShortName"`
	Industry    string  `json:"industry"`
	Sector      string  `json:"sector"`
	Country     string  `json:"country"`
	Website     string  `json:"website"`
	Description string  `json:"description"`
	CEO         string  `json:"ceo"`
	MarketCap   float64 `json:"mktCap"`
	Beta        float64 `json:"beta"`
	LastDiv     float64 `json:"lastDiv"`
	IPODate     string  `json:"ipoDate"`
}

// IncomeStatement is one reporting period of the income statement.
type IncomeStatement struct {
	Date             string  `json:"date"`
	Symbol           string  `json:"symbol"`
	Period           string  `json:"period"`
	ReportedCurrency string  `json:"reportedCurrency"`
	Revenue          float64 `json:"revenue"`
	GrossProfit      float64 `json:"grossProfit"`
	OperatingIncome  float64 `json:"operatingIncome"`
	NetIncome        float64 `json:"netIncome"`
	EBITDA           float64 `json:"ebitda"`
	EPS              float64 `json:"eps"`
	EPSDiluted       float64 `json:"epsdiluted"`
}

// BalanceSheet is one reporting period of the balance sheet.
type BalanceSheet struct {
	Date                    string  `json:"date"`
	Symbol                  string  `json:"symbol"`
	Period                  string  `json:"period"`
	ReportedCurrency        string  `json:"reportedCurrency"`
	CashAndCashEquivalents  float64 `json:"cashAndCashEquivalents"`
	TotalCurrentAssets      float64 `json:"totalCurrentAssets"`
	TotalAssets             float64 `json:"totalAssets"`
	TotalCurrentLiabilities float64 `json:"totalCurrentLiabilities"`
	TotalLiabilities        float64 `json:"totalLiabilities"`
	TotalDebt               float64 `json:"totalDebt"`
	NetDebt                 float64 `json:"netDebt"`
	TotalEquity             float64 `json:"totalStockholdersEquity"`
}

// CashFlowStatement is one reporting period of the cash flow statement.
type CashFlowStatement struct {
	Date               string  `json:"date"`
	Symbol             string  `json:"symbol"`
	Period             string  `json:"period"`
	ReportedCurrency   string  `json:"reportedCurrency"`
	OperatingCashFlow  float64 `json:"operatingCashFlow"`
	CapitalExpenditure float64 `json:"capitalExpenditure"`
	FreeCashFlow       float64 `json:"freeCashFlow"`
	DividendsPaid      float64 `json:"dividendsPaid"`
	NetChangeInCash    float64 `json:"netChangeInCash"`
	CashAtEndOfPeriod  float64 `json:"cashAtEndOfPeriod"`
}

// KeyMetrics is one reporting period of derived valuation ratios.
type KeyMetrics struct {
	Date              string  `json:"date"`
	Symbol            string  `json:"symbol"`
	Period            string  `json:"period"`
	MarketCap         float64 `json:"marketCap"`
	PERatio           float64 `json:"peRatio"`
	PBRatio           float64 `json:"pbRatio"`
	PriceToSalesRatio float64 `json:"priceToSalesRatio"`
	ROE               float64 `json:"roe"`
	ROA               float64 `json:"returnOnTangibleAssets"`
	DebtToEquity      float64 `json:"debtToEquity"`
	CurrentRatio      float64 `json:"currentRatio"`
	DividendYield     float64 `json:"dividendYield"`
	RevenuePerShare   float64 `json:"revenuePerShare"`
	NetIncomePerShare float64 `json:"netIncomePerShare"`
}

// SymbolMatch is one hit from a ticker search.
type SymbolMatch struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Currency      string `json:"currency"`
	StockExchange string `json:"stockExchange"`
	Exchange      string `json:"exchangeShortName"`
}

// Mover is one row from a gainers, losers or actives board.
type Mover struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Change            float64 `json:"change"`
	Price             float64 `json:"price"`
	ChangesPercentage float64 `json:"changesPercentage"`
}

// Article is one news item, either symbol-tied or macro.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
	Symbol      string `json:"symbol,omitempty"`
}
