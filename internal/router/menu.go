package router

import "github.com/m3rciful/tradebot/internal/chat"

const (
	mainMenuText  = "🤖 *Trading bot*\n\nChoose an action:"
	tradeMenuText = "📈 *Trade*\n\nSwap at market or place a limit order."
	infoMenuText  = "ℹ️ *Info*\n\nCheck your balances and open orders."
	busyText      = "⏳ Your last operation is still being submitted. Wait for the result."
)

func mainMenu() chat.Keyboard {
	return chat.Keyboard{
		{chat.Btn("📈 Trade", chat.DataTrade), chat.Btn("ℹ️ Info", chat.DataInfo)},
		{chat.Btn("📤 Withdraw", chat.DataWithdraw)},
	}
}

func tradeMenu() chat.Keyboard {
	return chat.Keyboard{
		{chat.Btn("🔄 Swap", chat.DataTradeSwap), chat.Btn("🎯 Limit order", chat.DataTradeLimit)},
		{chat.Btn("⬅️ Back", chat.DataBackMain)},
	}
}

func infoMenu() chat.Keyboard {
	return chat.Keyboard{
		{chat.Btn("💼 Holdings", chat.DataHoldings), chat.Btn("📋 Orders", chat.DataOrders)},
		{chat.Btn("⬅️ Back", chat.DataBackMain)},
	}
}
