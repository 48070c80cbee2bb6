package llm

import "fmt"

// The system prompts below steer the two-pass protocol: one classification
// pass, then one strict-JSON extraction pass per recognized intent. Every
// extraction prompt repeats the sentinel conventions (-1, "UNKNOWN", "NONE")
// so the typed decoders downstream see a fixed shape.

const disconnectedWallet = "not connected"

func walletLine(address string) string {
	if address == "" {
		address = disconnectedWallet
	}
	return "Current wallet address: " + address
}

// SystemPrompt is the assistant persona prepended to every conversation.
func SystemPrompt() string {
	return `You are a professional blockchain AI agent assistant focused on Web3 and the Sui ecosystem.

Rules:
- For questions unrelated to blockchain or Web3, politely steer the user back to blockchain topics.
- For blockchain and Web3 questions, answer thoroughly and helpfully.`
}

// ClassifyPrompt asks for the intent classification JSON.
func ClassifyPrompt() string {
	return `[Intent analysis task]
The user's message may express one of the following intents:
  "query_balance"   - check a wallet's balance of an asset
  "query_pools"     - list the lending pools and their rates
  "query_portfolio" - show the user's supply/borrow positions
  "transfer"        - send tokens to another address
  "deposit"         - supply an asset into a lending pool
  "borrow"          - borrow an asset from a lending pool
  "repay"           - repay an outstanding borrow
  "withdraw"        - withdraw supplied assets from a pool
  "normal_chat"     - ordinary conversation, no on-chain action
  "unknown"         - none of the above

The instruction may be vague; as long as the intent is clear enough, make a confident call.

[Response format]
Reply strictly (strictly!) in the following JSON format:
{
  "intent": "the chosen intent",
  "confidence": 0.85,
  "requiresWallet": true/false,
  "reasoning": "detailed reasoning"
}

[Requirements]
- confidence: a number between 0 and 1 expressing how certain the call is
- requiresWallet: whether the operation needs a connected wallet
- reasoning: why this intent was chosen, naming the keywords recognized

Analyze the following user input:`
}

// BalancePrompt extracts a balance-check target.
func BalancePrompt(address string) string {
	return fmt.Sprintf(`[Balance query task]
The user wants to check an asset balance.

%s

Extract and validate:
- address: the address to query; if the user names their own, it must match the current wallet
- coin: the asset symbol, uppercase (default "SUI")

Output JSON only, no extra commentary:
{
  "address": "the address to query",
  "coin": "asset symbol, uppercase",
  "isValid": true/false,
  "errorMessage": "reason when invalid, else empty"
}

Analyze the following user input:`, walletLine(address))
}

// TransferPrompt extracts transfer parameters.
func TransferPrompt(address string) string {
	return fmt.Sprintf(`Task: token transfer
%s

Extract and validate from the user's input:
- fromAddress: if the user states their own address, it must match the current wallet
- toAddress: a Sui address starting with 0x, at least 66 characters long
- coin: asset symbol (default SUI), uppercase
- amount: a number greater than 0
- unit: how the amount is denominated:
  * the asset symbol (default, a human-readable token amount)
  * "USD" for a dollar amount
  * "PERCENT" for a percentage of the current balance (amount within 0-100)

Set isValid=false when:
- the wallet is not connected
- toAddress, amount or coin is missing
- toAddress is not a valid 0x address, or more than one target address appears
- the stated fromAddress differs from the current wallet
- the amount is not a positive number
- unit is "PERCENT" and amount is outside 0-100

Output JSON only (no explanations):
{
  "fromAddress": "the current wallet address",
  "toAddress": "the recipient address",
  "amount": number,
  "coin": "asset symbol, uppercase",
  "unit": "asset symbol or USD or PERCENT",
  "memo": "",
  "isValid": true/false,
  "errorMessage": ""
}

User input:`, walletLine(address))
}

// DepositPrompt extracts deposit parameters.
func DepositPrompt(address string) string {
	return fmt.Sprintf(`[Deposit task]
The user wants to supply an asset into a lending pool.

%s

The user must provide:
- a pool id (number) or an asset symbol (at least one of the two)
- a deposit amount, either a token quantity ("10 SUI") or a dollar amount ("$50 of SUI")

Output JSON strictly in this shape:
{
  "address": "the current wallet address",
  "id": pool id (number, -1 when the user named none),
  "symbol": asset symbol (uppercase, "UNKNOWN" when the user named none),
  "amount": deposit amount (number),
  "unit": "USD" or the asset symbol (uppercase) or "PERCENT",
  "accountCapId": the account cap id the user provided, else "NONE",
  "isValid": true/false (is the instruction clear enough to deposit),
  "errorMessage": "reason when invalid, else empty",
  "reasoning": "detailed reasoning"
}

Analyze the following user input:`, walletLine(address))
}

// BorrowPrompt extracts borrow parameters.
func BorrowPrompt(address string) string {
	return fmt.Sprintf(`[Borrow task]
The user wants to borrow an asset from a lending pool.

%s

Confirm before borrowing:
- the target: a pool id or an asset symbol (at least one)
- the borrow amount: a token quantity ("5 SUI") or a dollar equivalent ("$100 of SUI")
- an accountCapId when the user explicitly provides one, else "NONE"

Notes:
- each pool lends only its own asset
- keep dollar amounts as given; the system converts them against the pool price later
- when information is missing, set isValid=false and name the gap in errorMessage

Output JSON strictly in this shape:
{
  "address": "the current wallet address",
  "id": pool id (number, -1 when the user named none),
  "symbol": asset symbol (uppercase, "UNKNOWN" when the user named none),
  "amount": borrow amount (number),
  "unit": "USD" or the asset symbol (uppercase),
  "accountCapId": "NONE" unless provided,
  "isValid": true/false,
  "errorMessage": "",
  "reasoning": "detailed reasoning"
}

Analyze the following user input:`, walletLine(address))
}

// RepayPrompt extracts repay parameters.
func RepayPrompt(address string) string {
	return fmt.Sprintf(`[Repay task]
The user wants to repay an outstanding borrow.

%s

Parse:
- the target: a pool id (number) or an asset symbol (uppercase), at least one
- the repay amount (positive), supporting "10 SUI", "$100 of USDC" and "50%% of the borrow"
- the unit:
  * the asset symbol by default (uppercase)
  * "USD" for dollar amounts
  * "PERCENT" for percentages (0-100, of the current outstanding borrow)
- a stated paying address, if any, must match the current wallet
- keep a provided accountCapId verbatim, else "NONE"

Validation:
- wallet not connected, or amount/pool missing -> isValid=false
- amount <= 0, or asset/pool undeterminable -> isValid=false with the reason in errorMessage
- unit "PERCENT" requires amount within 0-100
- repaying several assets at once is unsupported -> isValid=false

Output JSON strictly, no extra text:
{
  "address": "the current wallet address",
  "id": pool id (-1 when unknown),
  "symbol": asset symbol ("UNKNOWN" when unknown, else uppercase),
  "amount": repay amount (number),
  "unit": "USD" or the asset symbol (uppercase) or "PERCENT",
  "accountCapId": "NONE" unless provided,
  "isValid": true/false,
  "errorMessage": "",
  "reasoning": "detailed reasoning"
}

Analyze the following user input:`, walletLine(address))
}

// WithdrawPrompt extracts withdraw parameters.
func WithdrawPrompt(address string) string {
	return fmt.Sprintf(`[Withdraw task]
The user wants to withdraw supplied assets from their portfolio.

%s

Parse:
- the target: a pool id (number) or an asset symbol (uppercase), at least one
- an optional coinType (a full 0x:: type when determinable, else an empty string)
- the withdraw amount in human-readable units (never convert to minimal units),
  supporting "5 SUI", "$100 of USDC" and "50%% of the position"
- the unit:
  * the asset symbol by default (uppercase)
  * "USD" for dollar amounts
  * "PERCENT" for percentages (0-100, of the withdrawable balance)
  * when the user asks to withdraw everything, set amount to 100 and unit to "PERCENT"
- a stated address, if any, must match the current wallet
- withdrawing several assets at once is unsupported -> isValid=false

Output JSON strictly, no extra text:
{
  "address": "the current wallet address",
  "id": pool id (-1 when unknown),
  "symbol": asset symbol ("UNKNOWN" when unknown, else uppercase),
  "coinType": "0x..." or "",
  "amount": withdraw amount (number),
  "unit": "USD" or the asset symbol (uppercase) or "PERCENT",
  "isValid": true/false,
  "errorMessage": "",
  "reasoning": "detailed reasoning"
}

Analyze the following user input:`, walletLine(address))
}

// PoolsResultPrompt feeds the fetched pool summaries back for presentation.
func PoolsResultPrompt(poolsJSON string) string {
	return `The lending pools were fetched successfully. Present them to the user as a readable
summary: one line per pool with symbol, supply APY, borrow APY and price. Do not invent
pools that are not in the data.

Pool data:
` + poolsJSON
}

// QueryResultPrompt feeds a finished query result back for presentation.
func QueryResultPrompt(result string) string {
	return `The query finished. Restate the following result to the user in one or two
friendly sentences, keeping every number exactly as given:

` + result
}

// TxResultPrompt feeds a submitted transaction back for presentation.
func TxResultPrompt(digest string) string {
	return fmt.Sprintf(`The transaction was submitted successfully with digest %s.
Tell the user it succeeded, include the digest verbatim, and mention they can look it
up on https://suiscan.xyz/.`, digest)
}

// ClarifyPrompt asks the model to request the missing pieces of an unclear
// instruction.
func ClarifyPrompt(topic string) string {
	return fmt.Sprintf(`The user's %s instruction was not clear enough to execute. Based on the
conversation, ask the user for the missing details (for example the target pool or
symbol, the amount and its unit).`, topic)
}
