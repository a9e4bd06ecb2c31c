package migrations

func init() {
	Migrations.MustRegister(up("2024112201_create_lesson_scripts.sql"), drop("lesson_scripts"))
}
