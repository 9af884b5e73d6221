package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"user_id",
			"room_type_id",
			"start_date",
			"end_date",
			"rooms_booked",
			"guest_type",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"user_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"room_type_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"start_date": bson.M{
				"bsonType": "date",
			},

			"end_date": bson.M{
				"bsonType": "date",
			},

			"rooms_booked": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  100,
			},

			"guest_type": bson.M{
				"bsonType": "string",
				"enum": []string{
					"REGULAR",
					"VIP",
					"CORPORATE",
				},
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"PROVISIONAL",
					"CONFIRMED",
					"CANCELLED",
					"COMPLETED",
				},
			},

			"total_price": bson.M{
				"bsonType": "long",
				"minimum":  0,
			},

			"deposit_amount": bson.M{
				"bsonType": "long",
				"minimum":  0,
			},

			"paid_amount": bson.M{
				"bsonType": "long",
				"minimum":  0,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var PaymentRecordValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"booking_id",
			"amount",
			"kind",
			"actor",
			"recorded_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"booking_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"amount": bson.M{
				"bsonType": "long",
			},

			"kind": bson.M{
				"bsonType": "string",
				"enum": []string{
					"settlement",
					"deposit",
					"refund",
				},
			},

			"actor": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"recorded_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
