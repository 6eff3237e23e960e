package orders

// OrderLine is one requested cart line. Prices are never part of the
// request; they come from the catalog.
type OrderLine struct {
	ProductID string
	Quantity  int
}

// ValidateOrderLines rejects malformed creation input before the saga runs.
func ValidateOrderLines(lines []OrderLine) error {
	if len(lines) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	for _, line := range lines {
		if line.ProductID == "" {
			return &ValidationError{Field: "items.productId", Reason: "product id is required"}
		}
		if line.Quantity <= 0 {
			return &ValidationError{Field: "items.quantity", Reason: "quantity must be positive"}
		}
	}
	return nil
}

// ValidateStatus maps a raw status string onto a known Status.
func ValidateStatus(raw string) (Status, error) {
	status, ok := ParseStatus(raw)
	if !ok {
		return "", &ValidationError{Field: "status", Reason: "unknown status " + raw}
	}
	return status, nil
}

// ValidatePagination rejects non-positive page or limit values.
func ValidatePagination(page, limit int) error {
	if page < 1 {
		return &ValidationError{Field: "page", Reason: "page must be >= 1"}
	}
	if limit < 1 {
		return &ValidationError{Field: "limit", Reason: "limit must be >= 1"}
	}
	return nil
}
