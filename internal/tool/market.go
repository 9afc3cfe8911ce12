package tool

import (
	"context"
	"fmt"

	"github.com/Individeveloper/StockPocket/internal/market"
)

// RegisterMarketTools wires every market and news tool into the registry.
func RegisterMarketTools(reg *Registry, mc *market.Client, nc *market.NewsClient) {
	reg.Register(&StockQuoteTool{market: mc})
	reg.Register(&CompanyProfileTool{market: mc})
	reg.Register(&IncomeStatementTool{market: mc})
	reg.Register(&BalanceSheetTool{market: mc})
	reg.Register(&CashFlowTool{market: mc})
	reg.Register(&KeyMetricsTool{market: mc})
	reg.Register(&SymbolSearchTool{market: mc})
	reg.Register(&MarketMoversTool{market: mc})
	reg.Register(&StockNewsTool{news: nc})
	reg.Register(&MacroNewsTool{news: nc})
}

func symbolParam() map[string]Param {
	return map[string]Param{
		"symbol": {Type: "string", Description: "Ticker symbol including exchange suffix, e.g. BBCA.JK or AAPL"},
	}
}

func statementParams() map[string]Param {
	p := symbolParam()
	p["period"] = Param{Type: "string", Description: "Reporting period", Enum: []string{"annual", "quarter"}}
	p["limit"] = Param{Type: "integer", Description: "Number of periods to return, newest first (default 5)"}
	return p
}

// StockQuoteTool returns the live price snapshot for a symbol.
type StockQuoteTool struct {
	market *market.Client
}

func (t *StockQuoteTool) Name() string { return "get_stock_quote" }
func (t *StockQuoteTool) Description() string {
	return "Get the real-time stock quote for a symbol: price, daily change, volume, market cap, PE and 52-week range."
}
func (t *StockQuoteTool) Parameters() map[string]any {
	return ToolParameters(symbolParam(), []string{"symbol"})
}
func (t *StockQuoteTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	symbol := ArgsString(args, "symbol")
	if symbol == "" {
		return nil, fmt.Errorf("missing argument: symbol")
	}
	q := t.market.Quote(ctx, symbol)
	if q == nil {
		return map[string]any{"content": nil, "note": "no quote available for " + symbol}, nil
	}
	return q, nil
}

// CompanyProfileTool returns the company behind a symbol.
type CompanyProfileTool struct {
	market *market.Client
}

func (t *CompanyProfileTool) Name() string { return "get_company_profile" }
func (t *CompanyProfileTool) Description() string {
	return "Get the company profile for a symbol: sector, industry, description, market cap and key facts."
}
func (t *CompanyProfileTool) Parameters() map[string]any {
	return ToolParameters(symbolParam(), []string{"symbol"})
}
func (t *CompanyProfileTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	symbol := ArgsString(args, "symbol")
	if symbol == "" {
		return nil, fmt.Errorf("missing argument: symbol")
	}
	p := t.market.Profile(ctx, symbol)
	if p == nil {
		return map[string]any{"content": nil, "note": "no profile available for " + symbol}, nil
	}
	return p, nil
}

// IncomeStatementTool returns income statement history.
type IncomeStatementTool struct {
	market *market.Client
}

func (t *IncomeStatementTool) Name() string { return "get_income_statement" }
func (t *IncomeStatementTool) Description() string {
	return "Get income statements for a symbol: revenue, gross profit, operating income, net income and EPS per period."
}
func (t *IncomeStatementTool) Parameters() map[string]any {
	return ToolParameters(statementParams(), []string{"symbol"})
}
func (t *IncomeStatementTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	symbol := ArgsString(args, "symbol")
	if symbol == "" {
		return nil, fmt.Errorf("missing argument: symbol")
	}
	rows := t.market.IncomeStatements(ctx, symbol, market.Period(ArgsString(args, "period")), ArgsInt(args, "limit", 5))
	return nonNil(rows), nil
}

// BalanceSheetTool returns balance sheet history.
type BalanceSheetTool struct {
	market *market.Client
}

func (t *BalanceSheetTool) Name() string { return "get_balance_sheet" }
func (t *BalanceSheetTool) Description() string {
	return "Get balance sheets for a symbol: assets, liabilities, equity, cash and debt per period."
}
func (t *BalanceSheetTool) Parameters() map[string]any {
	return ToolParameters(statementParams(), []string{"symbol"})
}
func (t *BalanceSheetTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	symbol := ArgsString(args, "symbol")
	if symbol == "" {
		return nil, fmt.Errorf("missing argument: symbol")
	}
	rows := t.market.BalanceSheets(ctx, symbol, market.Period(ArgsString(args, "period")), ArgsInt(args, "limit", 5))
	return nonNil(rows), nil
}

// CashFlowTool returns cash flow statement history.
type CashFlowTool struct {
	market *market.Client
}

func (t *CashFlowTool) Name() string { return "get_cash_flow_statement" }
func (t *CashFlowTool) Description() string {
	return "Get cash flow statements for a symbol: operating cash flow, capex, free cash flow and dividends per period."
}
func (t *CashFlowTool) Parameters() map[string]any {
	return ToolParameters(statementParams(), []string{"symbol"})
}
func (t *CashFlowTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	symbol := ArgsString(args, "symbol")
	if symbol == "" {
		return nil, fmt.Errorf("missing argument: symbol")
	}
	rows := t.market.CashFlows(ctx, symbol, market.Period(ArgsString(args, "period")), ArgsInt(args, "limit", 5))
	return nonNil(rows), nil
}

// KeyMetricsTool returns valuation ratio history.
type KeyMetricsTool struct {
	market *market.Client
}

func (t *KeyMetricsTool) Name() string { return "get_key_metrics" }
func (t *KeyMetricsTool) Description() string {
	return "Get valuation metrics for a symbol: PE, PB, ROE, ROA, debt to equity and dividend yield per period."
}
func (t *KeyMetricsTool) Parameters() map[string]any {
	return ToolParameters(statementParams(), []string{"symbol"})
}
func (t *KeyMetricsTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	symbol := ArgsString(args, "symbol")
	if symbol == "" {
		return nil, fmt.Errorf("missing argument: symbol")
	}
	rows := t.market.KeyMetrics(ctx, symbol, market.Period(ArgsString(args, "period")), ArgsInt(args, "limit", 5))
	return nonNil(rows), nil
}

// SymbolSearchTool finds ticker symbols from company names.
type SymbolSearchTool struct {
	market *market.Client
}

func (t *SymbolSearchTool) Name() string { return "search_symbol" }
func (t *SymbolSearchTool) Description() string {
	return "Search ticker symbols by company name or partial symbol. Use this first when the user names a company without a ticker."
}
func (t *SymbolSearchTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"query": {Type: "string", Description: "Company name or partial ticker to search for"},
		"limit": {Type: "integer", Description: "Maximum matches to return (default 10)"},
	}, []string{"query"})
}
func (t *SymbolSearchTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	query := ArgsString(args, "query")
	if query == "" {
		return nil, fmt.Errorf("missing argument: query")
	}
	return nonNil(t.market.SearchSymbol(ctx, query, ArgsInt(args, "limit", 10))), nil
}

// MarketMoversTool returns the gainers, losers or most active board.
type MarketMoversTool struct {
	market *market.Client
}

func (t *MarketMoversTool) Name() string { return "get_market_movers" }
func (t *MarketMoversTool) Description() string {
	return "Get today's market movers: biggest gainers, biggest losers or most actively traded stocks."
}
func (t *MarketMoversTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"board": {Type: "string", Description: "Which board to fetch", Enum: []string{"gainers", "losers", "actives"}},
	}, []string{"board"})
}
func (t *MarketMoversTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	board := market.MoverKind(ArgsString(args, "board"))
	switch board {
	case market.MoversGainers, market.MoversLosers, market.MoversActives:
	default:
		return nil, fmt.Errorf("unknown board: %q (use gainers, losers or actives)", board)
	}
	return nonNil(t.market.Movers(ctx, board)), nil
}

// StockNewsTool returns recent headlines for one symbol.
type StockNewsTool struct {
	news *market.NewsClient
}

func (t *StockNewsTool) Name() string { return "get_stock_news" }
func (t *StockNewsTool) Description() string {
	return "Get recent news headlines about a specific stock. Returns an empty list when the news feed is not configured."
}
func (t *StockNewsTool) Parameters() map[string]any {
	p := symbolParam()
	p["limit"] = Param{Type: "integer", Description: "Maximum articles to return (default 10)"}
	return ToolParameters(p, []string{"symbol"})
}
func (t *StockNewsTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	symbol := ArgsString(args, "symbol")
	if symbol == "" {
		return nil, fmt.Errorf("missing argument: symbol")
	}
	return nonNil(t.news.StockNews(ctx, symbol, ArgsInt(args, "limit", 10))), nil
}

// MacroNewsTool searches market-wide and macroeconomic news.
type MacroNewsTool struct {
	news *market.NewsClient
}

func (t *MacroNewsTool) Name() string { return "search_macro_news" }
func (t *MacroNewsTool) Description() string {
	return "Search macroeconomic and market-wide news by topic, e.g. central bank rates, inflation or currency moves."
}
func (t *MacroNewsTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"query": {Type: "string", Description: "Topic to search news for"},
		"limit": {Type: "integer", Description: "Maximum articles to return (default 10)"},
	}, []string{"query"})
}
func (t *MacroNewsTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	query := ArgsString(args, "query")
	if query == "" {
		return nil, fmt.Errorf("missing argument: query")
	}
	return nonNil(t.news.MacroNews(ctx, query, ArgsInt(args, "limit", 10))), nil
}

// nonNil keeps empty results as [] rather than null on the wire, so the
// backend sees "no data" instead of a missing field.
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
