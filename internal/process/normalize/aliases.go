package normalize

// defaultAliases maps lower-case company names to tickers. Multi-word names are
// matched before their single-word prefixes.
var defaultAliases = map[string]string{
	"apple":                  "AAPL",
	"microsoft":              "MSFT",
	"nvidia":                 "NVDA",
	"tesla":                  "TSLA",
	"amazon":                 "AMZN",
	"alphabet":               "GOOGL",
	"google":                 "GOOGL",
	"facebook":               "META",
	"meta platforms":         "META",
	"netflix":                "NFLX",
	"advanced micro devices": "AMD",
	"intel":                  "INTC",
	"palantir":               "PLTR",
	"coinbase":               "COIN",
	"microstrategy":          "MSTR",
	"gamestop":               "GME",
	"berkshire hathaway":     "BRK.B",
	"jpmorgan":               "JPM",
	"broadcom":               "AVGO",
	"taiwan semiconductor":   "TSM",
	"super micro":            "SMCI",
	"bitcoin":                "BTC",
	"ethereum":               "ETH",
	"solana":                 "SOL",
	"s&p 500":                "SPX",
	"nasdaq 100":             "NDX",
}

// excludedWords are upper-case tokens that look like tickers but are usually plain
// words or chat jargon. They need a sigil or trading context to count.
var excludedWords = map[string]struct{}{
	"A": {}, "I": {}, "AM": {}, "AN": {}, "AND": {}, "ARE": {}, "AS": {}, "AT": {},
	"ALL": {}, "ANY": {}, "BE": {}, "BY": {}, "CAN": {}, "DO": {}, "FOR": {}, "GO": {},
	"HAS": {}, "HE": {}, "IF": {}, "IN": {}, "IS": {}, "IT": {}, "ME": {}, "MY": {},
	"NO": {}, "NOT": {}, "NOW": {}, "OF": {}, "OK": {}, "ON": {}, "ONE": {}, "OR": {},
	"OUT": {}, "SO": {}, "THE": {}, "TO": {}, "UP": {}, "US": {}, "WE": {}, "YOU": {},
	"NEW": {}, "REAL": {}, "LOVE": {}, "FUN": {}, "BIG": {}, "DD": {}, "CEO": {},
	"CFO": {}, "USA": {}, "USD": {}, "ATH": {}, "ATL": {}, "IMO": {}, "IMHO": {},
	"FOMO": {}, "FUD": {}, "YOLO": {}, "HODL": {}, "LOL": {}, "LMAO": {}, "WTF": {},
	"OMG": {}, "EPS": {}, "IPO": {}, "ETF": {}, "PM": {}, "EOD": {}, "EOW": {},
	"GDP": {}, "CPI": {}, "PPI": {}, "FED": {}, "FOMC": {}, "SEC": {}, "IV": {},
	"OTM": {}, "ITM": {}, "ATM": {}, "DTE": {}, "TA": {}, "PT": {}, "TP": {}, "SL": {},
	"RSI": {}, "MACD": {}, "EMA": {}, "SMA": {}, "VWAP": {}, "AH": {}, "PRE": {},
	"TLDR": {}, "FYI": {}, "BTW": {}, "GG": {}, "RIP": {}, "EDIT": {},
}

// tradingWords mark the surrounding text as talking about a position.
var tradingWords = map[string]struct{}{
	"buy": {}, "buying": {}, "bought": {}, "sell": {}, "selling": {}, "sold": {},
	"long": {}, "longs": {}, "short": {}, "shorts": {}, "shorting": {},
	"call": {}, "calls": {}, "put": {}, "puts": {}, "strike": {}, "exp": {},
	"entry": {}, "entered": {}, "target": {}, "targets": {}, "stop": {}, "stops": {},
	"support": {}, "resistance": {}, "breakout": {}, "breakdown": {},
	"bullish": {}, "bearish": {}, "shares": {}, "position": {}, "trim": {},
	"trimmed": {}, "add": {}, "added": {}, "adding": {}, "hold": {}, "holding": {},
	"scalp": {}, "swing": {}, "chart": {}, "earnings": {}, "dip": {}, "ticker": {},
	"pt": {}, "tp": {}, "sl": {}, "covered": {}, "cover": {},
}
