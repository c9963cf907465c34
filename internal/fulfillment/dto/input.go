package dto

import "time"

type OrderLine struct {
	OrderItemID string `json:"id"`
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
}

type Order struct {
	ID        string      `json:"id"`
	Priority  int         `json:"priority"`
	Lines     []OrderLine `json:"items"`
	CreatedAt time.Time   `json:"created_at"`
}
