package extract

// Builtin returns specs for the providers the engine ships with. A YAML file
// can override any of them per deployment.
func Builtin() []*Spec {
	return []*Spec{
		{
			// External CRM webhook payloads. Deal fields arrive both nested
			// and as bracketed form-encoded keys depending on the webhook
			// version.
			Provider:        "activecampaign",
			IdempotencyKeys: []string{"idempotency_key", "deal.id", "deal[id]"},
			ExternalIDs:     []string{"deal.id", "deal[id]", "contact.id", "contact[id]"},
			Pipelines:       []string{"deal.pipelineid", "deal[pipelineid]", "pipeline", "pipeline_id"},
			Stages:          []string{"deal.stageid", "deal[stageid]", "stage", "stage_id"},
			EntityTypes:     []string{"entity_type"},
			EventTypes:      []string{"type", "event"},
			DefaultEntity:   "deal",
			DefaultEvent:    "deal_update",
		},
		{
			Provider:        "chatpro",
			IdempotencyKeys: []string{"message_id", "id"},
			ExternalIDs:     []string{"chat_id", "message_id"},
			Labels:          []string{"label", "chat.label"},
			DefaultEntity:   "message",
			DefaultEvent:    "message_received",
		},
		{
			Provider:        "echo",
			IdempotencyKeys: []string{"data.whatsapp_message_id", "data.id"},
			ExternalIDs:     []string{"data.chat_id", "data.whatsapp_message_id"},
			Labels:          []string{"data.label", "data.tags.label"},
			DefaultEntity:   "message",
			DefaultEvent:    "message_received",
		},
	}
}
