package dto

type PickLine struct {
	OrderItemID string
	ProductID   string
	Quantity    int
}

type GenerateInput struct {
	OrderID  string
	Priority int
	Lines    []PickLine
}
