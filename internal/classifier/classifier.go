// internal/classifier/classifier.go
package classifier

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/locus/internal/locator"
	"github.com/xkilldash9x/locus/internal/scanner"
)

// SemanticType is the canonical meaning of a form field.
type SemanticType string

const (
	Email      SemanticType = "email"
	Password   SemanticType = "password"
	Phone      SemanticType = "phone"
	FirstName  SemanticType = "firstName"
	LastName   SemanticType = "lastName"
	FullName   SemanticType = "fullName"
	Username   SemanticType = "username"
	Address    SemanticType = "address"
	Address2   SemanticType = "address2"
	City       SemanticType = "city"
	State      SemanticType = "state"
	Zip        SemanticType = "zip"
	Country    SemanticType = "country"
	Company    SemanticType = "company"
	JobTitle   SemanticType = "jobTitle"
	BirthDate  SemanticType = "birthDate"
	Website    SemanticType = "website"
	Search     SemanticType = "search"
	Message    SemanticType = "message"
	SSN        SemanticType = "ssn"
	CreditCard SemanticType = "creditCard"
	CVV        SemanticType = "cvv"
	CardExpiry SemanticType = "cardExpiry"
	OTP        SemanticType = "otp"
	Unknown    SemanticType = "unknown"
)

// Rule maps a pattern over the field's context text to a type.
type Rule struct {
	Type    SemanticType
	Pattern *regexp.Regexp
}

// DefaultRules is the ordered pattern table. Order encodes priority: the first match wins, so
// specific patterns come before the generic ones they overlap with.
var DefaultRules = []Rule{
	{Email, regexp.MustCompile(`e-?mail`)},
	{Password, regexp.MustCompile(`pass(word|code)?\b|passwd|pwd`)},
	{OTP, regexp.MustCompile(`\botp\b|one.?time|verification.?code|\b2fa\b|auth.?code`)},
	{CVV, regexp.MustCompile(`cvv|cvc|\bcsc\b|security.?code`)},
	{CardExpiry, regexp.MustCompile(`expir(y|ation)|\bexp\b|mm.?/?.?yy`)},
	{CreditCard, regexp.MustCompile(`card.?(number|num|no\b)|cc.?num|credit.?card|\bpan\b`)},
	{SSN, regexp.MustCompile(`\bssn\b|social.?security`)},
	{Phone, regexp.MustCompile(`phone|mobile|\btel\b|\bcell`)},
	{Username, regexp.MustCompile(`user.?name|\blogin\b|user.?id|\bhandle\b`)},
	{FirstName, regexp.MustCompile(`first.?name|given.?name|\bfname\b|forename`)},
	{LastName, regexp.MustCompile(`last.?name|family.?name|surname|\blname\b`)},
	{Company, regexp.MustCompile(`company|organi[sz]ation|employer|business`)},
	{JobTitle, regexp.MustCompile(`job.?title|position|occupation`)},
	{FullName, regexp.MustCompile(`full.?name|your.?name|\bname\b`)},
	{Address2, regexp.MustCompile(`address.?(line)?.?2|\bapt\b|apartment|suite|\bunit\b`)},
	{Address, regexp.MustCompile(`address|street|\baddr`)},
	{City, regexp.MustCompile(`city|town|locality`)},
	{State, regexp.MustCompile(`\bstate\b|province|county|\bregion\b`)},
	{Zip, regexp.MustCompile(`\bzip|postal|post.?code`)},
	{Country, regexp.MustCompile(`country|nation`)},
	{BirthDate, regexp.MustCompile(`birth|\bdob\b|bday`)},
	{Website, regexp.MustCompile(`website|web.?site|homepage|\burl\b`)},
	{Search, regexp.MustCompile(`search|query|\bq\b`)},
	{Message, regexp.MustCompile(`message|comment|feedback|\bnotes?\b|description|inquiry|enquiry`)},
}

var inputTypeHints = map[string]SemanticType{
	"email":    Email,
	"tel":      Phone,
	"password": Password,
	"url":      Website,
	"search":   Search,
}

var autocompleteHints = map[string]SemanticType{
	"email": Email, "tel": Phone, "tel-national": Phone, "tel-local": Phone,
	"given-name": FirstName, "family-name": LastName, "name": FullName,
	"username": Username, "street-address": Address, "address-line1": Address,
	"address-line2": Address2, "address-level2": City, "address-level1": State,
	"postal-code": Zip, "country": Country, "country-name": Country,
	"organization": Company, "organization-title": JobTitle,
	"bday": BirthDate, "bday-day": BirthDate, "bday-month": BirthDate, "bday-year": BirthDate,
	"url": Website, "cc-number": CreditCard, "cc-csc": CVV, "cc-exp": CardExpiry,
	"cc-exp-month": CardExpiry, "cc-exp-year": CardExpiry, "one-time-code": OTP,
	"current-password": Password, "new-password": Password,
}

var confirmPattern = regexp.MustCompile(`confirm|verify|repeat|retype|re-?enter|again`)

var separators = strings.NewReplacer("_", " ", "-", " ", "[", " ", "]", " ", ".", " ")

// Classifier assigns semantic types to scanned fields.
type Classifier struct {
	rules []Rule
}

// New creates a classifier over rules, or DefaultRules when none are given.
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the semantic type of a field. Explicit input types and autocomplete tokens are
// consulted before the text table.
func (c *Classifier) Classify(f scanner.FieldDescriptor) SemanticType {
	if t, ok := inputTypeHints[f.InputType]; ok {
		return t
	}
	for _, tok := range strings.Fields(f.Autocomplete) {
		if t, ok := autocompleteHints[tok]; ok {
			return t
		}
	}
	if f.InputType == "checkbox" || f.InputType == "radio" {
		return Unknown
	}
	return c.ClassifyText(ContextText(f))
}

// ClassifyText matches free text against the ordered table.
func (c *Classifier) ClassifyText(text string) SemanticType {
	text = strings.ToLower(text)
	for _, r := range c.rules {
		if r.Pattern.MatchString(text) {
			return r.Type
		}
		// Separator-normalized text lets patterns like `\bfname\b` see "user_fname".
		if r.Pattern.MatchString(separators.Replace(text)) {
			return r.Type
		}
	}
	return Unknown
}

// ContextText concatenates the descriptive attributes the classifier reads.
func ContextText(f scanner.FieldDescriptor) string {
	parts := []string{f.Name, f.ID, f.Label, f.Placeholder, f.AccessibleName}
	return strings.ToLower(strings.Join(nonEmpty(parts), " "))
}

// FindPair returns the best locator of the confirmation field paired with f. Only email and
// password fields pair.
func (c *Classifier) FindPair(f scanner.FieldDescriptor, all []scanner.FieldDescriptor) (locator.Locator, bool) {
	t := c.Classify(f)
	if t != Email && t != Password {
		return locator.Locator{}, false
	}
	self := f.Key()
	for _, other := range all {
		if other.Key() == self || c.Classify(other) != t {
			continue
		}
		text := strings.ToLower(strings.Join([]string{other.Label, other.Name, other.ID, other.Placeholder}, " "))
		if confirmPattern.MatchString(text) {
			return other.BestLocator(), true
		}
	}
	return locator.Locator{}, false
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
