package migrations

func init() {
	Migrations.MustRegister(up("2024112202_create_chat_messages.sql"), drop("chat_messages"))
}
