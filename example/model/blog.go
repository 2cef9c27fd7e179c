package model

import "time"

//go:generate go tool ormgraph gen

type User struct {
	ID        int
	Name      string
	Email     string `db:"email,unique"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Posts     []Post `rel:"has_many,foreign_key:user_id,on_delete:cascade"`
}

type Post struct {
	ID     int
	Title  string
	Body   *string `db:"body,type:TEXT"`
	UserID int
	User   *User `rel:"belongs_to,foreign_key:user_id"`
	Tags   []Tag `rel:"belongs_to_many,through:PostTag"`
}

type Tag struct {
	ID   int
	Name string `db:"name,unique"`
}
