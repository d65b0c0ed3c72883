package layout

// Role identifies the semantic purpose of a table column.
type Role string

const (
	RoleQuantity    Role = "quantity"
	RoleWeight      Role = "weight"
	RoleRate        Role = "rate"
	RoleAmount      Role = "amount"
	RoleDescription Role = "description"
)

// catalogEntry is one known header arrangement within a pattern family.
type catalogEntry struct {
	headers     []string
	quantityCol string // set when the family names a non-obvious quantity column
	weightCol   string
	confidence  float64
}

type family struct {
	name    string
	entries []catalogEntry
}

// Generic is the fallback pattern family.
const Generic = "generic"

// The catalog is purely structural: no company- or industry-specific
// identifiers, only column arrangements observed in the wild.
var catalog = []family{
	{
		name: "pattern_a",
		entries: []catalogEntry{
			// Description + HSN + Quantity + Weight + Rate + Amount
			{headers: []string{"DESCRIPTION", "HSN", "QUANTITY", "WEIGHT", "RATE", "AMOUNT"}, confidence: 0.9},
			{headers: []string{"DESCRIPTION OF GOODS", "HSN", "QTY", "WEIGHT", "RATE", "AMOUNT"}, confidence: 0.9},
			{headers: []string{"GOODS DESCRIPTION", "HSN/SAC", "QTY", "WEIGHT", "RATE", "AMOUNT"}, confidence: 0.9},
			{headers: []string{"GOODS", "HSN CODE", "QUANTITY", "WEIGHT", "RATE", "AMOUNT"}, confidence: 0.9},
			// Variations with bags instead of quantity
			{headers: []string{"DESCRIPTION", "HSN", "BAGS", "WEIGHT", "RATE", "AMOUNT"}, quantityCol: "BAGS", weightCol: "WEIGHT", confidence: 0.9},
			{headers: []string{"DESCRIPTION", "HSN", "BAGS", "QUINTAL", "RATE", "AMOUNT"}, quantityCol: "BAGS", weightCol: "QUINTAL", confidence: 0.9},
		},
	},
	{
		name: "pattern_b",
		entries: []catalogEntry{
			// Description + Quantity + Rate + Amount (no HSN)
			{headers: []string{"DESCRIPTION", "QUANTITY", "RATE", "AMOUNT"}, confidence: 0.9},
			{headers: []string{"ITEM", "QTY", "RATE", "AMOUNT"}, confidence: 0.9},
			{headers: []string{"PARTICULARS", "QUANTITY", "RATE", "VALUE"}, confidence: 0.9},
			{headers: []string{"GOODS", "QTY", "PRICE", "TOTAL"}, confidence: 0.9},
			{headers: []string{"PRODUCT", "QUANTITY", "PRICE", "TOTAL"}, confidence: 0.9},
		},
	},
	{
		name: "pattern_c",
		entries: []catalogEntry{
			// Complex structure with batch/lot numbers
			{headers: []string{"DESCRIPTION", "HSN", "BATCH", "NET", "QUANTITY", "WEIGHT", "RATE"}, confidence: 0.9},
			{headers: []string{"PRODUCT", "HSN/SAC", "LOT", "QTY", "WEIGHT", "RATE", "AMOUNT"}, confidence: 0.9},
			{headers: []string{"DESCRIPTION", "HSN", "BATCH", "NET", "BAGS", "WEIGHT", "RATE"}, quantityCol: "BAGS", weightCol: "WEIGHT", confidence: 0.9},
		},
	},
	{
		name: "pattern_d",
		entries: []catalogEntry{
			// Bag + Pkg + Quantity arrangement; quantity is a decimal in metric tons
			{headers: []string{"DESCRIPTION", "HSN/SAC", "BATCH", "BAG", "PKG", "QUANTITY", "RATE", "PER", "AMOUNT"}, quantityCol: "QUANTITY", confidence: 0.95},
			{headers: []string{"DESCRIPTION OF GOODS", "HSN/SAC", "BATCH", "BAG", "PKG", "QUANTITY", "RATE", "PER", "AMOUNT"}, quantityCol: "QUANTITY", confidence: 0.95},
			{headers: []string{"SR", "DESCRIPTION", "HSN/SAC", "BATCH", "BAG", "PKG", "QUANTITY", "RATE", "PER", "AMOUNT"}, quantityCol: "QUANTITY", confidence: 0.95},
			{headers: []string{"DESCRIPTION", "HSN/SAC", "BAG", "PKG", "QUANTITY", "RATE", "PER", "AMOUNT"}, quantityCol: "QUANTITY", confidence: 0.95},
			{headers: []string{"DESCRIPTION", "HSN/SAC", "BAG", "PKG", "QUANTITY", "RATE", "PER"}, quantityCol: "QUANTITY", confidence: 0.95},
		},
	},
	{
		name: Generic,
		entries: []catalogEntry{
			{headers: []string{"DESCRIPTION", "QUANTITY", "RATE", "AMOUNT"}, confidence: 0.7},
			{headers: []string{"ITEM", "QTY", "PRICE", "VALUE"}, confidence: 0.7},
			{headers: []string{"GOODS", "QUANTITY", "PRICE", "TOTAL"}, confidence: 0.7},
		},
	},
}

// Keyword sets for semantic header classification. Order matters: the first
// matching role wins for a given header.
var roleKeywords = []struct {
	role  Role
	terms []string
}{
	{RoleQuantity, []string{"QTY", "QUANTITY", "BAGS", "NOS", "PIECES", "PCS", "COUNT"}},
	{RoleWeight, []string{"WEIGHT", "WT", "KG", "NET", "QUINTAL", "QTL", "MT", "TON"}},
	{RoleRate, []string{"RATE", "PRICE", "UNIT PRICE", "/KG", "/QTL", "/BAG", "PER"}},
	{RoleAmount, []string{"AMOUNT", "TOTAL", "VALUE", "AMT"}},
	{RoleDescription, []string{"DESC", "ITEM", "PRODUCT", "COMMODITY", "PARTICULARS"}},
}
