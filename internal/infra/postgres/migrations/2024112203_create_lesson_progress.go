package migrations

func init() {
	Migrations.MustRegister(up("2024112203_create_lesson_progress.sql"), drop("lesson_progress"))
}
