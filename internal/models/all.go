package models

// All lists every table owned by the service, in migration order
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&Product{},
		&Transaction{},
		&Order{},
		&PaymentCallbackHistory{},
		&ScheduledTask{},
		&ScheduledTaskHistory{},
	}
}
