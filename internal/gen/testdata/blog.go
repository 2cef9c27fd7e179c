package testdata

import "time"

type User struct {
	ID        int
	Name      string
	Email     *string `db:"email,unique"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Tasks     []Task   `rel:"has_many,foreign_key:user_id"`
	Profile   *Profile `rel:"has_one"`
	internal  string
}

type Profile struct {
	ID  int
	Bio *string `db:"bio,type:TEXT"`
}

type Task struct {
	ID     int64
	Title  string
	Status string `db:"status,default:open"`
	UserID *int
	User   *User  `rel:"belongs_to,foreign_key:user_id,on_delete:set_null"`
	Tags   []*Tag `rel:"belongs_to_many,through:TaskTag"`
	Notes  string `db:"-"`
}

type Tag struct {
	ID   int
	Name string `db:"name,unique"`
}

func (Tag) TableName() string { return "labels" }
