package model

type Operator struct {
	Base
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
	FullName     string `db:"full_name" json:"full_name"`
}

type Doctor struct {
	Base
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
	FullName     string `db:"full_name" json:"full_name"`
	Email        string `db:"email" json:"email"`
	Hospital     string `db:"hospital" json:"hospital"`
	Specialty    string `db:"specialty" json:"specialty"`
}
