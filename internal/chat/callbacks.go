package chat

import (
	"strconv"
	"strings"
)

// Callback data shared by menus and flows.
const (
	DataTrade        = "trade"
	DataInfo         = "info"
	DataWithdraw     = "withdraw"
	DataBackMain     = "back_main"
	DataBackToTrade  = "back_to_trade"
	DataTradeSwap    = "trade_swap"
	DataTradeLimit   = "trade_limit"
	DataHoldings     = "info_holdings"
	DataOrders       = "info_orders"
	DataNewOperation = "new_operation"
	DataLimitBuy     = "limit_buy"
	DataLimitSell    = "limit_sell"

	PrefixCancelOrder     = "cancel_order:"
	PrefixSwapPercent     = "swap_percent_"
	PrefixWithdrawPercent = "withdraw_percent_"
)

// Percentages offered by amount pickers.
var Percentages = []int{25, 50, 75, 100}

// IsGlobalNav reports callbacks honored even while a flow is active.
func IsGlobalNav(data string) bool {
	return data == DataBackMain || data == DataBackToTrade
}

// Percent parses "<prefix><n>" into n.
func Percent(data, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(data, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 || n > 100 {
		return 0, false
	}
	return n, true
}

// PercentData builds the callback data for n percent.
func PercentData(prefix string, n int) string {
	return prefix + strconv.Itoa(n)
}
