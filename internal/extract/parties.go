package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/facturaIA/fiscal-extractor/internal/models"
	"github.com/facturaIA/fiscal-extractor/internal/textnorm"
)

// partyWindow is how many lines around a tax id are searched for the
// owner's name and address
const partyWindow = 3

// letterheadLines is how far down an unlabelled issuer name is looked for
const letterheadLines = 4

const taxIDShape = `([a-z]-?\d{7}-?[0-9a-z]|\d{8}-?[a-z])`

var (
	labelledTaxID = regexp.MustCompile(`\b(?:nif|cif|dni|nie|n\.i\.f\.?|c\.i\.f\.?)[ \t]*[:.]?[ \t]*(?:es[ \t-]?)?` + taxIDShape + `\b`)
	genericTaxID  = regexp.MustCompile(`\b` + taxIDShape + `\b`)

	clientSection = regexp.MustCompile(`^\s*(?:datos\s+del\s+)?(?:cliente|facturar\s+a|destinatario|receptor|comprador)\b[ \t]*[:.]?[ \t]*`)
	issuerSection = regexp.MustCompile(`^\s*(?:datos\s+del\s+)?(?:emisor|proveedor|vendedor)\b[ \t]*[:.]?[ \t]*`)
	nameLabel     = regexp.MustCompile(`^\s*(?:nombre|razon\s+social)\s*[:.]?\s*`)

	addressLabel = regexp.MustCompile(`^\s*(?:direccion|domicilio)(?:\s+fiscal)?\s*[:.]?\s*`)
	streetToken  = regexp.MustCompile(`^\s*(?:c/|c\.|calle|avda\.?|avenida|av\.|plaza|pza\.?|paseo|p[º°]|ctra\.?|carretera|camino|ronda|travesia)(?:\s|$)`)
	postalLine   = regexp.MustCompile(`^\s*\d{5}\s+\pL`)

	// document wording that is never a business name on a letterhead
	genericWording = regexp.MustCompile(`\b(?:documento|revisad[oa]|copia|duplicado|original|presupuesto|albaran|concepto|descripcion|detalle|importe|honorarios|servicios\s+profesionales)\b`)

	notAName = regexp.MustCompile(`factura|fecha|\btotal\b|\biva\b|\bbase\b|\bnif\b|\bcif\b|\bdni\b|\btelf?\b|telefono|e-?mail|@|www\.|https?:|\biban\b|\bcuenta\b|ticket|recibo|pagina|\bn[º°]`)
)

type partyKind int

const (
	partyUnknown partyKind = iota
	partyIssuer
	partyClient
)

// block is a run of lines introduced by a section keyword
type block struct {
	kind   partyKind
	header int // line carrying the keyword, -1 when implicit
	start  int
	end    int // exclusive
	inline string
}

func (b block) contains(line int) bool {
	return b.start <= line && line < b.end
}

type taxIDHit struct {
	id   string
	line int
}

// ExtractParties locates the issuer and client of an invoice
func ExtractParties(t textnorm.Text) (models.Party, models.Party) {
	blocks := partyBlocks(t)
	hits := findTaxIDs(t)

	var issuer, client models.Party
	issuerLine, clientLine := -1, -1
	var issuerHits, clientHits, loose []taxIDHit
	for _, h := range hits {
		switch kindAt(blocks, h.line) {
		case partyClient:
			clientHits = append(clientHits, h)
		case partyIssuer:
			issuerHits = append(issuerHits, h)
		default:
			loose = append(loose, h)
		}
	}

	// a section keeps its best id; the others compete with the loose ones
	if len(issuerHits) > 0 {
		ranked := preferValid(issuerHits)
		issuer.TaxID, issuerLine = ranked[0].id, ranked[0].line
		loose = append(loose, ranked[1:]...)
	}
	if len(clientHits) > 0 {
		ranked := preferValid(clientHits)
		client.TaxID, clientLine = ranked[0].id, ranked[0].line
		loose = append(loose, ranked[1:]...)
	}
	sortByLine(loose)

	// ids outside any section fill the free slots in document order
	switch {
	case issuer.TaxID == "" && client.TaxID == "":
		if len(loose) > 2 {
			loose = preferValid(loose)
		}
		var ids []string
		for _, h := range loose {
			ids = append(ids, h.id)
		}
		issuer.TaxID, client.TaxID = AssignTaxIDs(ids)
		if issuer.TaxID != "" {
			issuerLine = loose[0].line
		}
		if client.TaxID != "" {
			clientLine = loose[1].line
		}
	case issuer.TaxID == "" && len(loose) > 0:
		best := preferValid(loose)[0]
		issuer.TaxID, issuerLine = best.id, best.line
	case client.TaxID == "" && len(loose) > 0:
		best := preferValid(loose)[0]
		client.TaxID, clientLine = best.id, best.line
	}

	if b, ok := blockOf(blocks, partyIssuer); ok {
		fillFromBlock(t, &issuer, b)
	}
	if b, ok := blockOf(blocks, partyClient); ok {
		fillFromBlock(t, &client, b)
	}
	if issuer.Name == "" && issuerLine >= 0 {
		issuer.Name = nameNear(t, issuerLine)
	}
	if client.Name == "" && clientLine >= 0 {
		client.Name = nameNear(t, clientLine)
	}
	if issuer.Address == "" && issuerLine >= 0 {
		issuer.Address = addressIn(t, issuerLine-partyWindow, issuerLine+partyWindow+1)
	}
	if client.Address == "" && clientLine >= 0 {
		client.Address = addressIn(t, clientLine-partyWindow, clientLine+partyWindow+1)
	}

	// letterheads carry the issuer name on top
	if issuer.Name == "" {
		end := letterheadLines
		if b, ok := blockOf(blocks, partyClient); ok && b.header < end {
			end = b.header
		}
		issuer.Name = letterheadName(t, end)
	}

	return issuer, client
}

// AssignTaxIDs splits unlabelled tax ids between issuer and client: the
// first occurrence belongs to the issuer, the second to the client.
func AssignTaxIDs(ids []string) (issuer, client string) {
	if len(ids) > 0 {
		issuer = ids[0]
	}
	if len(ids) > 1 {
		client = ids[1]
	}
	return issuer, client
}

// ExtractVendor returns the merchant name a receipt starts with
func ExtractVendor(t textnorm.Text) string {
	return letterheadName(t, len(t.Lines()))
}

// letterheadName is the first plausible name in lines [0, end) that is not
// generic document wording or a payment method
func letterheadName(t textnorm.Text, end int) string {
	for i := 0; i < end && i < len(t.Lines()); i++ {
		l := t.Lines()[i]
		if genericWording.MatchString(l) {
			continue
		}
		if _, ok := vocabularyMethod(l); ok {
			continue
		}
		if name := firstName(t, i, i+1); name != "" {
			return name
		}
	}
	return ""
}

// preferValid moves ids with a correct control character ahead of the
// rest, keeping document order within each group
func preferValid(hits []taxIDHit) []taxIDHit {
	ranked := make([]taxIDHit, 0, len(hits))
	for _, h := range hits {
		if ValidTaxID(h.id) {
			ranked = append(ranked, h)
		}
	}
	for _, h := range hits {
		if !ValidTaxID(h.id) {
			ranked = append(ranked, h)
		}
	}
	return ranked
}

func sortByLine(hits []taxIDHit) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].line < hits[j].line })
}

func findTaxIDs(t textnorm.Text) []taxIDHit {
	seen := map[string]bool{}
	var hits []taxIDHit
	add := func(loc []int) {
		id := strings.ToUpper(strings.ReplaceAll(t.Folded[loc[2]:loc[3]], "-", ""))
		if seen[id] {
			return
		}
		seen[id] = true
		hits = append(hits, taxIDHit{id: id, line: t.LineAt(loc[2])})
	}

	for _, loc := range labelledTaxID.FindAllStringSubmatchIndex(t.Folded, -1) {
		add(loc)
	}
	for _, loc := range genericTaxID.FindAllStringSubmatchIndex(t.Folded, -1) {
		add(loc)
	}

	// labelled ids were collected first; restore document order
	sortByLine(hits)
	return hits
}

func partyBlocks(t textnorm.Text) []block {
	lines := t.Lines()
	var blocks []block
	for i, l := range lines {
		kind := partyUnknown
		var loc []int
		if loc = clientSection.FindStringIndex(l); loc != nil {
			kind = partyClient
		} else if loc = issuerSection.FindStringIndex(l); loc != nil {
			kind = partyIssuer
		}
		if kind == partyUnknown {
			continue
		}
		if n := len(blocks); n > 0 && blocks[n-1].end > i {
			blocks[n-1].end = i
		}
		end := i + 2*partyWindow
		if end > len(lines) {
			end = len(lines)
		}
		blocks = append(blocks, block{
			kind:   kind,
			header: i,
			start:  i,
			end:    end,
			inline: t.OriginalFrom(i, loc[1]),
		})
	}

	// without an explicit issuer section, whatever precedes the client is the issuer's
	if _, ok := blockOf(blocks, partyIssuer); !ok {
		if c, ok := blockOf(blocks, partyClient); ok && c.header > 0 {
			blocks = append(blocks, block{kind: partyIssuer, header: -1, start: 0, end: c.header})
		}
	}
	return blocks
}

func kindAt(blocks []block, line int) partyKind {
	for _, b := range blocks {
		if b.contains(line) {
			return b.kind
		}
	}
	return partyUnknown
}

func blockOf(blocks []block, kind partyKind) (block, bool) {
	for _, b := range blocks {
		if b.kind == kind {
			return b, true
		}
	}
	return block{}, false
}

func fillFromBlock(t textnorm.Text, p *models.Party, b block) {
	if p.Name == "" {
		if name := cutTaxID(b.inline); b.header >= 0 && plausibleName(textnorm.Normalize(name)) {
			p.Name = name
		} else {
			p.Name = firstName(t, b.start, b.end)
		}
	}
	if p.Address == "" {
		p.Address = addressIn(t, b.start, b.end)
	}
}

// nameNear looks at the tax id line itself, then upwards
func nameNear(t textnorm.Text, line int) string {
	if loc := genericTaxID.FindStringIndex(t.Lines()[line]); loc != nil {
		before := strings.TrimRight(t.OriginalLine(line), " ")
		if name := cutTaxID(before); plausibleName(textnorm.Normalize(name)) {
			return name
		}
	}
	for i := line - 1; i >= 0 && i >= line-partyWindow; i-- {
		if name := nameOnLine(t, i); name != "" {
			return name
		}
	}
	return ""
}

func firstName(t textnorm.Text, start, end int) string {
	if start < 0 {
		start = 0
	}
	for i := start; i < end && i < len(t.Lines()); i++ {
		if b := clientSection.FindStringIndex(t.Lines()[i]); b != nil {
			continue
		}
		if b := issuerSection.FindStringIndex(t.Lines()[i]); b != nil {
			continue
		}
		if name := nameOnLine(t, i); name != "" {
			return name
		}
	}
	return ""
}

func nameOnLine(t textnorm.Text, i int) string {
	folded := t.Lines()[i]
	if loc := nameLabel.FindStringIndex(folded); loc != nil {
		name := cutTaxID(t.OriginalFrom(i, loc[1]))
		if plausibleName(textnorm.Normalize(name)) {
			return name
		}
		return ""
	}
	if !plausibleName(folded) {
		return ""
	}
	return t.OriginalLine(i)
}

// cutTaxID drops a trailing tax id and its label from s
func cutTaxID(s string) string {
	folded := textnorm.Normalize(s)
	loc := labelledTaxID.FindStringIndex(folded)
	if loc == nil {
		loc = genericTaxID.FindStringIndex(folded)
	}
	if loc == nil {
		return strings.TrimSpace(s)
	}
	if len(folded) != len(s) {
		// byte offsets differ once accents were folded; fall back to the rune position
		r := []rune(s)
		n := len([]rune(folded[:loc[0]]))
		if n > len(r) {
			n = len(r)
		}
		s = string(r[:n])
	} else {
		s = s[:loc[0]]
	}
	return strings.Trim(s, " \t-,;|")
}

func plausibleName(folded string) bool {
	folded = strings.TrimSpace(folded)
	if len(folded) < 3 || notAName.MatchString(folded) {
		return false
	}
	if streetToken.MatchString(folded) || postalLine.MatchString(folded) || addressLabel.MatchString(folded) {
		return false
	}
	letters, digits := 0, 0
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z':
			letters++
		case r >= '0' && r <= '9':
			digits++
		}
	}
	return letters >= 3 && digits <= letters/2
}

// addressIn returns the first address found in lines [start, end), joined
// with the postal code line that follows a street line
func addressIn(t textnorm.Text, start, end int) string {
	lines := t.Lines()
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	for i := start; i < end; i++ {
		l := lines[i]
		var addr string
		switch {
		case addressLabel.MatchString(l):
			loc := addressLabel.FindStringIndex(l)
			addr = t.OriginalFrom(i, loc[1])
		case streetToken.MatchString(l):
			addr = t.OriginalLine(i)
		case postalLine.MatchString(l):
			return t.OriginalLine(i)
		default:
			continue
		}
		if addr == "" {
			continue
		}
		if i+1 < len(lines) && postalLine.MatchString(lines[i+1]) {
			addr += ", " + t.OriginalLine(i+1)
		}
		return addr
	}
	return ""
}
